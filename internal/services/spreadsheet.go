package services

import (
	"client-registry/internal/models"
	"client-registry/internal/normalize"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const sheetName = "Clients"

// Column keys understood by import and written by export
const (
	colFullName   = "full_name"
	colLastName   = "last_name"
	colFirstName  = "first_name"
	colMiddleName = "middle_name"
	colBirth      = "date_of_birth"
	colPhone      = "phone"
	colContract   = "contract_number"
	colPlanStart  = "plan_start_date"
	colPlanEnd    = "plan_end_date"
	colGroup      = "group"
)

// exportHeaders is the column order of exported workbooks
var exportHeaders = []struct {
	Key   string
	Label string
	Width float64
}{
	{colFullName, "Full name", 36},
	{colBirth, "Date of birth", 15},
	{colPhone, "Phone", 18},
	{colContract, "Contract number", 18},
	{colPlanStart, "Plan start date", 16},
	{colPlanEnd, "Plan end date", 16},
	{colGroup, "Group", 15},
}

// headerAliases maps lowercased header labels to column keys
var headerAliases = map[string]string{
	"full name":            colFullName,
	"name":                 colFullName,
	"фио":                  colFullName,
	"last name":            colLastName,
	"фамилия":              colLastName,
	"first name":           colFirstName,
	"имя":                  colFirstName,
	"middle name":          colMiddleName,
	"отчество":             colMiddleName,
	"date of birth":        colBirth,
	"дата рождения":        colBirth,
	"phone":                colPhone,
	"телефон":              colPhone,
	"contract number":      colContract,
	"номер договора":       colContract,
	"plan start date":      colPlanStart,
	"дата начала иппсу":    colPlanStart,
	"plan end date":        colPlanEnd,
	"дата окончания иппсу": colPlanEnd,
	"group":                colGroup,
	"группа":               colGroup,
}

// RowError describes why one spreadsheet row was not imported
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportReport summarizes a spreadsheet import
type ImportReport struct {
	Added      int        `json:"added"`
	Duplicates int        `json:"duplicates"`
	Invalid    int        `json:"invalid"`
	Skipped    int        `json:"skipped"`
	Errors     []RowError `json:"errors,omitempty"`
}

// SpreadsheetService imports and exports client records as xlsx workbooks
type SpreadsheetService struct {
	clients *ClientService
	log     *zap.Logger
}

// NewSpreadsheetService creates a new spreadsheet service
func NewSpreadsheetService(clients *ClientService, log *zap.Logger) *SpreadsheetService {
	return &SpreadsheetService{
		clients: clients,
		log:     log.With(zap.String("component", "spreadsheet")),
	}
}

// ImportClients reads the first sheet of r and inserts each row through the
// duplicate guard. Rows without a name are skipped; duplicates and invalid
// rows are counted and reported, not fatal.
func (s *SpreadsheetService) ImportClients(ctx context.Context, r io.Reader) (*ImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("spreadsheet has no sheets")
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	report := &ImportReport{}
	if len(rows) < 2 {
		return report, nil
	}

	columns := mapHeader(rows[0])
	if _, ok := columns[colFullName]; !ok {
		if _, ok := columns[colLastName]; !ok {
			return nil, &ValidationError{Errors: []FieldError{{Field: "header", Message: "no name column found"}}}
		}
	}

	for i, row := range rows[1:] {
		rowNum := i + 2
		client := rowToClient(row, columns)
		if client.LastName == "" && client.FirstName == "" {
			report.Skipped++
			continue
		}

		err := s.clients.CheckAndInsert(ctx, client)
		var dup *DuplicateIdentityError
		switch {
		case err == nil:
			report.Added++
		case errors.As(err, &dup):
			report.Duplicates++
			report.Errors = append(report.Errors, RowError{Row: rowNum, Message: dup.Error()})
		case errors.Is(err, ErrValidation):
			report.Invalid++
			report.Errors = append(report.Errors, RowError{Row: rowNum, Message: err.Error()})
		default:
			return report, fmt.Errorf("row %d: %w", rowNum, err)
		}
	}

	s.log.Info("Spreadsheet imported",
		zap.Int("added", report.Added),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("invalid", report.Invalid),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

// ExportClients writes every client to w as an xlsx workbook
func (s *SpreadsheetService) ExportClients(ctx context.Context, w io.Writer) error {
	clients, err := s.clients.List(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, h := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h.Label); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetName, col, col, h.Width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for r, c := range clients {
		values := exportRow(&c)
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r+2, err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func exportRow(c *models.Client) []interface{} {
	values := make([]interface{}, 0, len(exportHeaders))
	for _, h := range exportHeaders {
		switch h.Key {
		case colFullName:
			values = append(values, c.DisplayName())
		case colBirth:
			values = append(values, c.DateOfBirth)
		case colPhone:
			values = append(values, c.Phone)
		case colContract:
			values = append(values, c.ContractNumber)
		case colPlanStart:
			values = append(values, c.PlanStartDate)
		case colPlanEnd:
			values = append(values, c.PlanEndDate)
		case colGroup:
			values = append(values, c.GroupLabel)
		}
	}
	return values
}

func mapHeader(header []string) map[string]int {
	columns := make(map[string]int)
	for i, label := range header {
		key, ok := headerAliases[strings.ToLower(strings.Join(strings.Fields(label), " "))]
		if !ok {
			continue
		}
		if _, seen := columns[key]; !seen {
			columns[key] = i
		}
	}
	return columns
}

func rowToClient(row []string, columns map[string]int) *models.Client {
	get := func(key string) string {
		i, ok := columns[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	c := &models.Client{
		LastName:       get(colLastName),
		FirstName:      get(colFirstName),
		MiddleName:     get(colMiddleName),
		DateOfBirth:    cellDate(get(colBirth)),
		Phone:          get(colPhone),
		ContractNumber: get(colContract),
		PlanStartDate:  cellDate(get(colPlanStart)),
		PlanEndDate:    cellDate(get(colPlanEnd)),
		GroupLabel:     get(colGroup),
	}
	if full := get(colFullName); full != "" && c.LastName == "" {
		c.LastName, c.FirstName, c.MiddleName = normalize.SplitFullName(full)
	}
	return c
}

// cellDate accepts a textual date or an Excel date serial
func cellDate(v string) string {
	if v == "" {
		return ""
	}
	if d := normalize.Date(v); d != "" {
		return d
	}
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil || serial <= 0 {
		return ""
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return ""
	}
	return normalize.Day(t).Format(normalize.DateLayout)
}
