// Package server hosts the store registry behind HTTP: a bundled data source
// that Remote stores can read, a store API, and websocket and long-poll
// feeds of store events.
package server

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/zot/ui-data/internal/bundle"
	"github.com/zot/ui-data/internal/config"
	"github.com/zot/ui-data/internal/lua"
	"github.com/zot/ui-data/internal/mcp"
	"github.com/zot/ui-data/internal/quark"
	"github.com/zot/ui-data/internal/storage"
	"github.com/zot/ui-data/internal/store"
)

// Server is the main data server.
type Server struct {
	config       *config.Config
	registry     *store.Registry
	quarks       *quark.Registry
	backend      storage.Backend
	luaRuntime   *lua.Runtime
	hotLoader    *lua.HotLoader
	execs        *executors
	polls        *PendingQueueManager
	httpServer   *http.Server
	httpEndpoint *HTTPEndpoint
	wsEndpoint   *WebSocketEndpoint
	mcpServer    *mcp.Server
	stores       []store.Store
	baseURL      string
	stopCleanup  chan struct{}
}

// openBundle finds the data bundled into the executable.
var openBundle = bundle.Self

// bundledData returns the executable's bundle, or nil if it has none.
func bundledData(cfg *config.Config) *zip.Reader {
	z, err := openBundle()
	if err != nil {
		if !errors.Is(err, bundle.ErrNotBundled) {
			cfg.Log(0, "Warning: reading bundled data: %v", err)
		}
		return nil
	}
	return z
}

// New creates a server: it opens and seeds the storage backend and loads the
// Lua quark scripts. Stores are built once the HTTP address is known, by
// StartHTTP or ConfigureStores. A binary carrying a data bundle seeds from
// the bundle when no seed directory is configured, and loads the bundle's
// scripts when the Lua directory is missing.
func New(cfg *config.Config) (*Server, error) {
	backend, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	s := &Server{
		config:      cfg,
		registry:    store.NewRegistry(),
		quarks:      quark.NewRegistry(),
		backend:     backend,
		execs:       newExecutors(cfg),
		polls:       NewPendingQueueManager(cfg),
		stopCleanup: make(chan struct{}),
	}

	data := bundledData(cfg)
	if err := s.seed(data); err != nil {
		backend.Close()
		return nil, fmt.Errorf("seeding storage: %w", err)
	}

	if cfg.Lua.Enabled {
		if err := s.setupLua(data); err != nil {
			backend.Close()
			return nil, err
		}
	}

	s.wsEndpoint = NewWebSocketEndpoint(cfg, s.registry)
	s.httpEndpoint = NewHTTPEndpoint(cfg, s.registry, backend, s.execs, s.wsEndpoint, s.polls)
	s.mcpServer = mcp.NewServer(cfg, s.registry, s.quarks, s.luaRuntime)
	s.mcpServer.SetExecutor(s.runOnStore)
	return s, nil
}

// runOnStore runs fn on store id's executor, in order with the HTTP
// operations on that store.
func (s *Server) runOnStore(id string, fn func() error) error {
	_, err := run(s.execs, id, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (s *Server) seed(data *zip.Reader) error {
	var names []string
	var err error
	switch {
	case s.config.Storage.Seed != "":
		names, err = storage.Seed(context.Background(), s.backend, s.config.Storage.Seed)
		if err == nil {
			s.config.Log(1, "Seeded collections %v from %s", names, s.config.Storage.Seed)
		}
	case data != nil:
		if sub, ok := bundle.Sub(data, bundle.SeedDir); ok {
			names, err = storage.SeedFS(context.Background(), s.backend, sub)
			if err == nil {
				s.config.Log(1, "Seeded collections %v from the bundle", names)
			}
		}
	}
	return err
}

// setupLua loads the scripts directory and starts the hot loader if asked.
// Without the directory it loads the bundled scripts, if any; otherwise Lua
// stays off.
func (s *Server) setupLua(data *zip.Reader) error {
	dir := s.config.Lua.Path
	if _, err := os.Stat(dir); err != nil {
		if data != nil {
			if sub, ok := bundle.Sub(data, bundle.LuaDir); ok {
				return s.setupBundledLua(sub)
			}
		}
		s.config.Log(1, "Lua directory %s not available, quark scripts disabled: %v", dir, err)
		return nil
	}
	rt, err := lua.NewRuntime(s.config, dir, s.quarks)
	if err != nil {
		return fmt.Errorf("starting lua runtime: %w", err)
	}
	names, err := rt.LoadDir()
	if err != nil {
		rt.Shutdown()
		return err
	}
	s.luaRuntime = rt
	s.config.Log(1, "Loaded Lua scripts %v", names)

	if s.config.Lua.HotReload {
		hl, err := lua.NewHotLoader(s.config, dir, rt)
		if err != nil {
			rt.Shutdown()
			return fmt.Errorf("creating lua hot loader: %w", err)
		}
		if err := hl.Start(); err != nil {
			rt.Shutdown()
			return fmt.Errorf("starting lua hot loader: %w", err)
		}
		s.hotLoader = hl
	}
	return nil
}

// setupBundledLua loads scripts from the bundle. They cannot change, so there
// is no hot loader.
func (s *Server) setupBundledLua(scripts fs.FS) error {
	rt, err := lua.NewRuntime(s.config, "", s.quarks)
	if err != nil {
		return fmt.Errorf("starting lua runtime: %w", err)
	}
	names, err := rt.LoadFS(scripts)
	if err != nil {
		rt.Shutdown()
		return err
	}
	s.luaRuntime = rt
	s.config.Log(1, "Loaded bundled Lua scripts %v", names)
	return nil
}

// ConfigureStores installs the store type handlers with baseURL as the
// prefix of relative sources and builds the configured stores.
func (s *Server) ConfigureStores(baseURL string) error {
	s.baseURL = baseURL
	store.RegisterHandlers(s.registry, store.Options{
		Config:  s.config,
		Quarks:  s.quarks,
		BaseURL: baseURL,
	})
	built, err := BuildStores(s.registry, s.config.Stores)
	s.stores = built
	if err != nil {
		return err
	}
	s.config.Log(1, "Built %d stores", len(built))
	return nil
}

// Start starts the HTTP server on the configured port.
func (s *Server) Start() error {
	_, err := s.StartHTTP(s.config.Server.Port)
	return err
}

// StartHTTP starts the HTTP server on the specified port, builds the
// configured stores against it and returns the full base URL.
func (s *Server) StartHTTP(port int) (string, error) {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.httpEndpoint,
	}

	// We need to capture the actual port if 0 was passed
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if port == 0 {
		_, portStr, _ := net.SplitHostPort(listener.Addr().String())
		s.config.Server.Port, _ = strconv.Atoi(portStr)
	}

	go func() {
		s.config.Log(0, "HTTP server listening on %s", listener.Addr())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.config.Log(0, "HTTP server error: %v", err)
		}
	}()

	host := s.config.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	baseURL := fmt.Sprintf("http://%s:%d", host, s.config.Server.Port)
	if err := s.ConfigureStores(baseURL); err != nil {
		return baseURL, err
	}
	return baseURL, nil
}

// ServeMCP starts the HTTP server and then serves MCP on stdio until the
// client disconnects.
func (s *Server) ServeMCP() error {
	if _, err := s.StartHTTP(s.config.Server.Port); err != nil {
		return err
	}
	s.config.Log(0, "Starting MCP server on stdio...")
	if err := s.mcpServer.ServeStdio(); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

// StartCleanupWorker starts a background worker that closes long-poll
// clients idle for longer than interval.
func (s *Server) StartCleanupWorker(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCleanup:
				return
			case <-ticker.C:
				if count := s.polls.Reap(interval); count > 0 {
					s.config.Log(1, "Closed %d idle poll clients", count)
				}
			}
		}
	}()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.stopCleanup:
	default:
		close(s.stopCleanup)
	}
	if s.hotLoader != nil {
		s.hotLoader.Stop()
	}
	s.polls.Close()
	s.wsEndpoint.CloseAll()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.execs.stop()
	for _, st := range s.stores {
		st.Disable()
	}
	if s.luaRuntime != nil {
		s.luaRuntime.Shutdown()
	}
	if cerr := s.backend.Close(); err == nil {
		err = cerr
	}
	return err
}

// Handler returns the HTTP handler, for serving with httptest.
func (s *Server) Handler() http.Handler {
	return s.httpEndpoint
}

// Registry returns the store registry.
func (s *Server) Registry() *store.Registry {
	return s.registry
}

// Quarks returns the quark function registry.
func (s *Server) Quarks() *quark.Registry {
	return s.quarks
}

// Backend returns the data source storage.
func (s *Server) Backend() storage.Backend {
	return s.backend
}

// GetLuaRuntime returns the Lua runtime, nil when Lua is off.
func (s *Server) GetLuaRuntime() *lua.Runtime {
	return s.luaRuntime
}

// BaseURL returns the URL stores resolve relative sources against.
func (s *Server) BaseURL() string {
	return s.baseURL
}
