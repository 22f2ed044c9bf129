package services

import (
	"bytes"
	"client-registry/internal/models"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func workbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return &buf
}

func TestImportClients_LegacyHeaders(t *testing.T) {
	ctx := context.Background()
	clients := newClientService(t)
	svc := NewSpreadsheetService(clients, zap.NewNop())

	book := workbook(t, [][]interface{}{
		{"ФИО", "Дата рождения", "Телефон", "Номер договора", "Дата начала ИППСУ", "Дата окончания ИППСУ", "Группа"},
		{"Петров Иван Сергеевич", "15.03.1948", "+7 900 000", "D-1", "01.04.2026", "31.03.2027", "A"},
		{"Сидорова Анна", 18264.0, "", "", "", "", "B"},
		{"петров иван сергеевич", "1948-03-15", "", "", "", "", ""},
		{"", "", "", "", "", "", ""},
		{"Безднев", "", "", "", "", "", ""},
	})

	report, err := svc.ImportClients(ctx, book)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 1, report.Invalid)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Errors, 2)
	assert.Equal(t, 4, report.Errors[0].Row)
	assert.Equal(t, 6, report.Errors[1].Row)

	all, err := clients.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	petrov := all[0]
	assert.Equal(t, "Петров", petrov.LastName)
	assert.Equal(t, "Иван", petrov.FirstName)
	assert.Equal(t, "Сергеевич", petrov.MiddleName)
	assert.Equal(t, "1948-03-15", petrov.DateOfBirth)
	assert.Equal(t, "2027-03-31", petrov.PlanEndDate)

	// 18264 is the Excel serial for 1950-01-01.
	assert.Equal(t, "1950-01-01", all[1].DateOfBirth)
}

func TestImportClients_NoNameColumn(t *testing.T) {
	svc := NewSpreadsheetService(newClientService(t), zap.NewNop())
	book := workbook(t, [][]interface{}{{"Phone", "Group"}, {"1", "A"}})

	_, err := svc.ImportClients(context.Background(), book)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestImportClients_NotAWorkbook(t *testing.T) {
	svc := NewSpreadsheetService(newClientService(t), zap.NewNop())
	_, err := svc.ImportClients(context.Background(), bytes.NewBufferString("plain text"))
	assert.Error(t, err)
}

func TestExportThenImport(t *testing.T) {
	ctx := context.Background()
	source := newClientService(t)
	require.NoError(t, source.CheckAndInsert(ctx, ivanova()))
	require.NoError(t, source.CheckAndInsert(ctx, &models.Client{
		LastName: "Orlov", FirstName: "Pavel", MiddleName: "Ilyich", DateOfBirth: "1939-11-02", GroupLabel: "B",
	}))

	var buf bytes.Buffer
	require.NoError(t, NewSpreadsheetService(source, zap.NewNop()).ExportClients(ctx, &buf))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	rows, err := f.GetRows("Clients")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Len(t, rows, 3)
	assert.Equal(t, "Full name", rows[0][0])
	assert.Equal(t, "Ivanova Maria", rows[1][0])
	assert.Equal(t, "Orlov Pavel Ilyich", rows[2][0])

	target := newClientService(t)
	svc := NewSpreadsheetService(target, zap.NewNop())
	report, err := svc.ImportClients(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)

	again, err := svc.ImportClients(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Zero(t, again.Added)
	assert.Equal(t, 2, again.Duplicates)
}
