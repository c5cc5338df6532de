// This file re-exports config types from internal/config for public API.
package cli

import (
	"github.com/zot/ui-data/internal/config"
)

// Re-export config types for public API
type (
	Config         = config.Config
	ServerConfig   = config.ServerConfig
	StorageConfig  = config.StorageConfig
	LuaConfig      = config.LuaConfig
	RegistryConfig = config.RegistryConfig
	LoggingConfig  = config.LoggingConfig
	StoreConfig    = config.StoreConfig
	Duration       = config.Duration
)

// Re-export config functions for public API
var (
	DefaultConfig = config.DefaultConfig
	Load          = config.Load
)
