package mcp

import (
	"github.com/zot/ui-data/internal/query"
	"github.com/zot/ui-data/internal/record"
	"github.com/zot/ui-data/internal/store"
)

// StoreInfo describes a registered store.
type StoreInfo struct {
	ID     string       `json:"id"`
	Type   string       `json:"type"`
	Source string       `json:"source,omitempty"`
	Mode   string       `json:"mode,omitempty"`
	Skip   int          `json:"skip"`
	Limit  int          `json:"limit"`
	Sort   query.Sort   `json:"sort,omitempty"`
	Filter query.Filter `json:"filter,omitempty"`
}

// ReadResult is the payload of read_store and search_store.
type ReadResult struct {
	Data  []*record.Record `json:"data"`
	Total *int             `json:"total,omitempty"`
}

// ScriptResult is the payload of load_script.
type ScriptResult struct {
	Script    string   `json:"script"`
	Functions []string `json:"functions"`
}

type sourced interface {
	Source() string
	Mode() store.Mode
}

// describe builds the StoreInfo of s.
func describe(s store.Store) StoreInfo {
	info := StoreInfo{
		ID:     s.ID(),
		Type:   storeType(s),
		Skip:   s.Skip(),
		Limit:  s.Limit(),
		Sort:   s.Sort(),
		Filter: s.Filter(),
	}
	if src, ok := s.(sourced); ok {
		info.Source = src.Source()
		info.Mode = string(src.Mode())
	}
	return info
}

func storeType(s store.Store) string {
	switch s.(type) {
	case *store.Cached:
		return "cached"
	case *store.TreeReader:
		return "tree"
	case *store.Remote:
		return "remote"
	}
	return "custom"
}

// readResult pairs records with the store's count, if it keeps one.
func readResult(s store.Store, recs []*record.Record) ReadResult {
	if recs == nil {
		recs = []*record.Record{}
	}
	res := ReadResult{Data: recs}
	if c, ok := s.(store.Counter); ok {
		if n, ok := c.Count(); ok {
			res.Total = &n
		}
	}
	return res
}
