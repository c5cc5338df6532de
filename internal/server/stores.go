package server

import (
	"fmt"

	"github.com/zot/ui-data/internal/config"
	"github.com/zot/ui-data/internal/store"
)

// remoteSettings is implemented by every store built on Remote.
type remoteSettings interface {
	SetSource(string)
	SetMode(store.Mode)
	SetReader(string)
	SetWriter(string)
}

// BuildStores creates the stores declared in the configuration through the
// registry's type handlers. Stores marked enabled register themselves.
func BuildStores(reg *store.Registry, stores []config.StoreConfig) ([]store.Store, error) {
	built := make([]store.Store, 0, len(stores))
	for _, sc := range stores {
		s, err := buildStore(reg, sc)
		if err != nil {
			return built, err
		}
		built = append(built, s)
	}
	return built, nil
}

func buildStore(reg *store.Registry, sc config.StoreConfig) (store.Store, error) {
	if sc.ID == "" {
		return nil, fmt.Errorf("store of type %q has no id", sc.Type)
	}
	typ := sc.Type
	if typ == "" {
		typ = "remote"
	}
	s, ok, err := reg.NewHandler(typ, sc.ID, false)
	if err != nil {
		return nil, fmt.Errorf("store %q: %w", sc.ID, err)
	}
	if !ok {
		return nil, fmt.Errorf("store %q: unknown store type %q", sc.ID, typ)
	}

	if rs, ok := s.(remoteSettings); ok {
		if sc.Mode != "" {
			mode, err := store.ParseMode(sc.Mode)
			if err != nil {
				return nil, fmt.Errorf("store %q: %w", sc.ID, err)
			}
			rs.SetMode(mode)
		}
		rs.SetSource(sc.Source)
		if sc.Reader != "" {
			rs.SetReader(sc.Reader)
		}
		if sc.Writer != "" {
			rs.SetWriter(sc.Writer)
		}
	}
	if sc.Limit > 0 {
		s.SetLimit(sc.Limit)
	}
	if sc.IsEnabled() {
		if err := s.Enable(); err != nil {
			return nil, fmt.Errorf("store %q: %w", sc.ID, err)
		}
	}
	return s, nil
}
