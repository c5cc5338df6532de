// This file re-exports internal packages for embedding ui-data in other programs.
package cli

import (
	"github.com/zot/ui-data/internal/lua"
	"github.com/zot/ui-data/internal/quark"
	"github.com/zot/ui-data/internal/record"
	"github.com/zot/ui-data/internal/server"
	"github.com/zot/ui-data/internal/store"
)

// Re-export server types
type (
	Server     = server.Server
	LuaRuntime = lua.Runtime
	// Data layer types for registering custom stores and quark functions
	StoreRegistry = store.Registry
	Store         = store.Store
	StoreOptions  = store.Options
	Record        = record.Record
	QuarkRegistry = quark.Registry
	QuarkCall     = quark.Call
)

// Re-export constructors
var (
	NewServer = server.New
)
