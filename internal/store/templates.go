package store

import (
	"database/sql"
	"time"
)

// SaveTemplates stores the extraction template document, replacing any previous one.
func (db *DB) SaveTemplates(raw string) error {
	_, err := db.Exec(`
		INSERT INTO templates (id, document, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		raw, time.Now().UnixMilli())
	return err
}

// LoadTemplates returns the saved template document, or "" if none was saved.
func (db *DB) LoadTemplates() (string, error) {
	var raw string
	err := db.QueryRow(`SELECT document FROM templates WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return raw, err
}
