package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zot/ui-data/internal/query"
	"github.com/zot/ui-data/internal/record"
)

// sqlStorage holds records as JSON text, one row per record, ordered by
// insertion. Queries load the collection and evaluate it in Go, so every
// backend answers with the same semantics.
type sqlStorage struct {
	db *sql.DB
	// statements, in the driver's placeholder style
	selectRecords string
	insertRecord  string
	deleteRecords string
	listNames     string
}

// Query loads the collection and evaluates q over it.
func (s *sqlStorage) Query(ctx context.Context, collection string, q query.Query) (Result, error) {
	rows, err := s.db.QueryContext(ctx, s.selectRecords, collection)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	var recs []*record.Record
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return Result{}, err
		}
		r, err := decodeRecord(value)
		if err != nil {
			return Result{}, fmt.Errorf("collection %q: %w", collection, err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	return Evaluate(recs, q), nil
}

// Insert appends recs in one transaction.
func (s *sqlStorage) Insert(ctx context.Context, collection string, recs []*record.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, r := range recs {
		value, err := encodeRecord(r)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, s.insertRecord, collection, value); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Delete drops a collection.
func (s *sqlStorage) Delete(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx, s.deleteRecords, collection)
	return err
}

// Collections lists the collection names.
func (s *sqlStorage) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.listNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close closes the storage backend.
func (s *sqlStorage) Close() error {
	return s.db.Close()
}
