package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zot/ui-data/internal/query"
	"github.com/zot/ui-data/internal/record"
)

// Seed loads every .json, .yaml and .yml file of dir into the collection
// named after the file (users.yaml -> users). A file holds an array of
// records or a single record. Collections that already hold records are
// left alone so restarting against a persistent backend does not duplicate
// them. It returns the names of the collections it filled.
func Seed(ctx context.Context, b Backend, dir string) ([]string, error) {
	return SeedFS(ctx, b, os.DirFS(dir))
}

// SeedFS is Seed over the top level of fsys, such as a bundled data directory.
func SeedFS(ctx context.Context, b Backend, fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading seed directory: %w", err)
	}

	var seeded []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := path.Ext(entry.Name())
		switch ext {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)

		existing, err := b.Query(ctx, name, query.Query{Limit: 1})
		if err != nil {
			return seeded, err
		}
		if existing.Total > 0 {
			continue
		}

		recs, err := readSeedFile(fsys, entry.Name())
		if err != nil {
			return seeded, err
		}
		if err := b.Insert(ctx, name, recs); err != nil {
			return seeded, fmt.Errorf("seeding %s: %w", name, err)
		}
		seeded = append(seeded, name)
	}
	return seeded, nil
}

func readSeedFile(fsys fs.FS, name string) ([]*record.Record, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	if path.Ext(name) == ".json" {
		recs, err := record.Normalize(json.RawMessage(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return recs, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	// through JSON so YAML values take the same shapes as fetched ones
	js, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	recs, err := record.Normalize(json.RawMessage(js))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return recs, nil
}
