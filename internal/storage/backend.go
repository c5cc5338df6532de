// Package storage holds the record collections served by the bundled data
// source: named, append-only lists of JSON records, queried with the same
// filter, sort and paging rules the stores apply on the client side.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zot/ui-data/internal/config"
	"github.com/zot/ui-data/internal/query"
	"github.com/zot/ui-data/internal/record"
)

// Result is one page of a collection plus the number of records that
// matched the filter before paging. It marshals as {data, total}.
type Result struct {
	Records []*record.Record `json:"data"`
	Total   int              `json:"total"`
}

// Backend defines the interface for storage backends.
type Backend interface {
	// Query returns the window q of a collection. Unknown collections are empty.
	Query(ctx context.Context, collection string, q query.Query) (Result, error)

	// Insert appends records to a collection, creating it if needed.
	Insert(ctx context.Context, collection string, recs []*record.Record) error

	// Delete drops a collection.
	Delete(ctx context.Context, collection string) error

	// Collections lists the collection names, sorted.
	Collections(ctx context.Context) ([]string, error)

	// Close closes the storage backend.
	Close() error
}

// Open creates the backend named by cfg.Type: memory (default), sqlite or postgresql.
func Open(cfg config.StorageConfig) (Backend, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "sqlite":
		return NewSQLiteStorage(cfg.Path)
	case "postgresql", "postgres":
		return NewPostgresStorage(cfg.URL)
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

// Evaluate applies q to a whole collection: filter, sort, then page.
func Evaluate(recs []*record.Record, q query.Query) Result {
	matched := query.Match(recs, q.Filter, nil)
	query.SortRecords(matched, q.Sort)
	return Result{
		Records: query.Page(matched, q.Skip, q.Limit),
		Total:   len(matched),
	}
}

func encodeRecord(r *record.Record) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding record: %w", err)
	}
	return string(data), nil
}

func decodeRecord(s string) (*record.Record, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return record.New(v), nil
}
