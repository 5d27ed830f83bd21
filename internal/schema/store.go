package schema

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"goldbox/internal/logging"
)

// Store persists field mappings to SQLite so a session's learned
// vocabulary survives a restart. All writes go through the owning Cache,
// which already serializes them.
type Store struct {
	db     *sql.DB
	dbPath string
}

// StoredField is one persisted row.
type StoredField struct {
	CardType   string
	FieldName  string
	Code       string
	ValueType  string
	Confidence float64
	UsageCount int
}

// OpenStore initializes the SQLite database at the given path.
func OpenStore(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "OpenStore")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("schema store ready at %s", path)
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_fields (
			card_type   TEXT NOT NULL,
			field_name  TEXT NOT NULL,
			code        TEXT NOT NULL,
			value_type  TEXT NOT NULL DEFAULT '',
			confidence  REAL NOT NULL DEFAULT 0,
			usage_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (card_type, field_name)
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_schema_fields_code
			ON schema_fields (card_type, code);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_fields table: %w", err)
	}
	return nil
}

// LoadAll returns every persisted field mapping.
func (s *Store) LoadAll() ([]StoredField, error) {
	rows, err := s.db.Query(`
		SELECT card_type, field_name, code, value_type, confidence, usage_count
		FROM schema_fields
		ORDER BY card_type, code`)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema fields: %w", err)
	}
	defer rows.Close()

	var out []StoredField
	for rows.Next() {
		var f StoredField
		if err := rows.Scan(&f.CardType, &f.FieldName, &f.Code, &f.ValueType, &f.Confidence, &f.UsageCount); err != nil {
			return nil, fmt.Errorf("failed to scan schema field: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Upsert writes one field mapping.
func (s *Store) Upsert(cardType, fieldName string, m FieldMapping) error {
	_, err := s.db.Exec(`
		INSERT INTO schema_fields (card_type, field_name, code, value_type, confidence, usage_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (card_type, field_name) DO UPDATE SET
			value_type = excluded.value_type,
			confidence = excluded.confidence`,
		cardType, fieldName, m.Code, m.ValueType, m.Confidence, m.UsageCount)
	if err != nil {
		return fmt.Errorf("failed to upsert schema field: %w", err)
	}
	return nil
}

// UpdateUsage persists a usage counter bump.
func (s *Store) UpdateUsage(cardType, fieldName string, count int) error {
	_, err := s.db.Exec(`
		UPDATE schema_fields SET usage_count = ?
		WHERE card_type = ? AND field_name = ?`,
		count, cardType, fieldName)
	return err
}

// Clear removes every persisted mapping.
func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM schema_fields`)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
