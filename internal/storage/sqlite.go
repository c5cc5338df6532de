package storage

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage is a SQLite storage backend.
type SQLiteStorage struct {
	sqlStorage
}

// NewSQLiteStorage creates a new SQLite storage backend.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStorage{sqlStorage{
		db:            db,
		selectRecords: `SELECT value FROM records WHERE collection = ? ORDER BY seq`,
		insertRecord:  `INSERT INTO records (collection, value) VALUES (?, ?)`,
		deleteRecords: `DELETE FROM records WHERE collection = ?`,
		listNames:     `SELECT DISTINCT collection FROM records ORDER BY collection`,
	}}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// init creates the necessary tables.
func (s *SQLiteStorage) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			value TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection, seq);
	`)
	return err
}
