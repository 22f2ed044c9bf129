package database

import (
	"client-registry/internal/models"
	"client-registry/internal/normalize"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	clientsTable = "clients"
	stagingTable = "clients_new"
)

// MigrationOutcome says which branch MigrateClients took
type MigrationOutcome string

const (
	OutcomeCreated  MigrationOutcome = "created"
	OutcomeMigrated MigrationOutcome = "migrated"
	OutcomeUpToDate MigrationOutcome = "up-to-date"
)

// MigrationReport summarizes a MigrateClients run
type MigrationReport struct {
	Outcome  MigrationOutcome
	Copied   int // rows copied with structured names
	Fallback int // rows kept with the unsplit full name as last name
	Skipped  int // rows that could not be inserted at all
	Rekeyed  int // rows whose identity key was stored in an older format
}

// MigrateClients brings the clients table to the structured-name layout.
//
// A missing table is created. A legacy table (single "fio" column) is copied
// row by row into a staging table and swapped in, all inside one
// transaction. A table that already has structured names is left alone, so
// running this repeatedly is safe.
func MigrateClients(db *gorm.DB, log *zap.Logger) (*MigrationReport, error) {
	if !db.Migrator().HasTable(clientsTable) {
		if err := createClientsTable(db, clientsTable); err != nil {
			return nil, err
		}
		return &MigrationReport{Outcome: OutcomeCreated}, nil
	}

	cols, err := tableColumns(db, clientsTable)
	if err != nil {
		return nil, err
	}

	if cols["last_name"] {
		if !cols["identity_key"] {
			return nil, fmt.Errorf("clients table has structured names but no identity_key column")
		}
		if err := createClientsIndexes(db, clientsTable); err != nil {
			return nil, err
		}
		rekeyed, err := rekeyClients(db, log)
		if err != nil {
			return nil, err
		}
		return &MigrationReport{Outcome: OutcomeUpToDate, Rekeyed: rekeyed}, nil
	}

	if !cols["fio"] {
		return nil, fmt.Errorf("clients table has neither fio nor last_name column")
	}

	report := &MigrationReport{Outcome: OutcomeMigrated}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DROP TABLE IF EXISTS " + stagingTable).Error; err != nil {
			return fmt.Errorf("drop stale staging table: %w", err)
		}
		if err := createClientsTable(tx, stagingTable); err != nil {
			return err
		}

		var rows []map[string]interface{}
		if err := tx.Table(clientsTable).Order("id").Find(&rows).Error; err != nil {
			return fmt.Errorf("read legacy clients: %w", err)
		}

		for _, row := range rows {
			client := legacyToClient(row)
			err := tx.Table(stagingTable).Create(client).Error
			if err == nil {
				report.Copied++
				continue
			}
			log.Warn("Legacy client row rejected, trying fallback insert",
				zap.Uint("legacy_id", client.ID), zap.Error(err))

			fallback := unsplitClient(row)
			if err := tx.Table(stagingTable).Create(fallback).Error; err != nil {
				report.Skipped++
				log.Error("Legacy client row skipped",
					zap.String("fio", str(row["fio"])), zap.Error(err))
				continue
			}
			report.Fallback++
		}

		if err := tx.Exec("DROP TABLE " + clientsTable).Error; err != nil {
			return fmt.Errorf("drop legacy table: %w", err)
		}
		if err := tx.Exec("ALTER TABLE " + stagingTable + " RENAME TO " + clientsTable).Error; err != nil {
			return fmt.Errorf("swap in migrated table: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("Legacy clients migrated to structured names",
		zap.Int("rows", report.Copied+report.Fallback+report.Skipped))
	return report, nil
}

// rekeyClients recomputes identity keys written by an older key format.
// The key is a function of the normalized name and birth date, so rows that
// were distinct before stay distinct after.
func rekeyClients(db *gorm.DB, log *zap.Logger) (int, error) {
	var clients []models.Client
	if err := db.Table(clientsTable).
		Select("id, last_name, first_name, middle_name, date_of_birth, identity_key").
		Find(&clients).Error; err != nil {
		return 0, fmt.Errorf("read identity keys: %w", err)
	}

	rekeyed := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, c := range clients {
			key := models.IdentityKey(c.LastName, c.FirstName, c.MiddleName, c.DateOfBirth)
			if key == c.IdentityKey {
				continue
			}
			if err := tx.Table(clientsTable).Where("id = ?", c.ID).Update("identity_key", key).Error; err != nil {
				return fmt.Errorf("rekey client %d: %w", c.ID, err)
			}
			rekeyed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if rekeyed > 0 {
		log.Info("Client identity keys rewritten", zap.Int("rows", rekeyed))
	}
	return rekeyed, nil
}

func createClientsTable(db *gorm.DB, table string) error {
	ddl := `CREATE TABLE ` + table + ` (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		last_name TEXT NOT NULL,
		first_name TEXT NOT NULL,
		middle_name TEXT NOT NULL DEFAULT '',
		date_of_birth TEXT NOT NULL,
		phone TEXT,
		contract_number TEXT,
		plan_start_date TEXT,
		plan_end_date TEXT,
		group_label TEXT,
		identity_key TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`
	if err := db.Exec(ddl).Error; err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	return createClientsIndexes(db, table)
}

func createClientsIndexes(db *gorm.DB, table string) error {
	if err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_clients_identity ON " + table + "(identity_key)").Error; err != nil {
		return fmt.Errorf("create identity index: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_clients_contract ON " + table + "(contract_number)").Error; err != nil {
		return fmt.Errorf("create contract index: %w", err)
	}
	return nil
}

func tableColumns(db *gorm.DB, table string) (map[string]bool, error) {
	var names []string
	if err := db.Raw("SELECT name FROM pragma_table_info(?)", table).Scan(&names).Error; err != nil {
		return nil, fmt.Errorf("inspect %s: %w", table, err)
	}
	cols := make(map[string]bool, len(names))
	for _, n := range names {
		cols[strings.ToLower(n)] = true
	}
	return cols, nil
}

func legacyToClient(row map[string]interface{}) *models.Client {
	last, first, middle := normalize.SplitFullName(str(row["fio"]))
	client := &models.Client{
		ID:             uint(num(row["id"])),
		LastName:       last,
		FirstName:      first,
		MiddleName:     middle,
		DateOfBirth:    normalize.Date(str(row["dob"])),
		Phone:          strings.TrimSpace(str(row["phone"])),
		ContractNumber: strings.TrimSpace(firstNonEmpty(str(row["contract_number"]), str(row["contract"]))),
		PlanStartDate:  normalize.Date(str(row["ippcu_start"])),
		PlanEndDate:    normalize.Date(str(row["ippcu_end"])),
		GroupLabel:     strings.TrimSpace(str(row["group_name"])),
	}
	client.ComputeIdentityKey()
	return client
}

// unsplitClient keeps the whole legacy name in LastName so an operator can
// fix it by hand; the differing key lets a duplicate survive the migration.
func unsplitClient(row map[string]interface{}) *models.Client {
	client := legacyToClient(row)
	client.ID = 0
	client.LastName = strings.Join(strings.Fields(str(row["fio"])), " ")
	client.FirstName = ""
	client.MiddleName = ""
	client.ComputeIdentityKey()
	return client
}

func str(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func num(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		n, _ := strconv.ParseInt(str(v), 10, 64)
		return n
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
