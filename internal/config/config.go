// Package config handles configuration loading from CLI flags, environment variables, and TOML files.
package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration settings for the data layer server.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Lua      LuaConfig      `toml:"lua"`
	Registry RegistryConfig `toml:"registry"`
	Logging  LoggingConfig  `toml:"logging"`
	Stores   []StoreConfig  `toml:"store"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig selects the backend of the bundled data source.
type StorageConfig struct {
	Type string `toml:"type"` // "memory", "sqlite", "postgresql"
	Path string `toml:"path"` // SQLite file path
	URL  string `toml:"url"`  // PostgreSQL connection URL
	Seed string `toml:"seed"` // Directory of .json/.yaml collections loaded at startup
}

// LuaConfig holds settings for Lua quark functions.
type LuaConfig struct {
	Enabled   bool   `toml:"enabled"`
	Path      string `toml:"path"`
	HotReload bool   `toml:"hot_reload"`
}

// RegistryConfig holds store registry settings.
type RegistryConfig struct {
	WaitTimeout Duration `toml:"wait_timeout"` // How long hosts wait for a store (0 = forever)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `toml:"level"`     // "debug", "info", "warn", "error"
	Verbosity int    `toml:"verbosity"` // 0=none, 1=lifecycle, 2=requests, 3=store ops, 4=payloads
}

// StoreConfig declares a store created at startup.
type StoreConfig struct {
	ID      string `toml:"id"`
	Type    string `toml:"type"` // "remote", "cached", "tree"
	Source  string `toml:"source"`
	Mode    string `toml:"mode"` // "query", "rest", "quark"
	Reader  string `toml:"reader"`
	Writer  string `toml:"writer"`
	Limit   int    `toml:"limit"`
	Enabled *bool  `toml:"enabled"` // Defaults to true
}

// IsEnabled reports whether the store should be enabled at startup.
func (s StoreConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// verbosityCounter implements flag.Value for counting -v flags.
type verbosityCounter int

func (v *verbosityCounter) String() string {
	return fmt.Sprintf("%d", *v)
}

func (v *verbosityCounter) Set(string) error {
	*v++
	return nil
}

func (v *verbosityCounter) IsBoolFlag() bool {
	return true
}

// expandVerbosityFlags preprocesses args to expand -vvv into -v -v -v.
func expandVerbosityFlags(args []string) []string {
	result := make([]string, 0, len(args))
	for _, arg := range args {
		if len(arg) > 2 && arg[0] == '-' && arg[1] == 'v' {
			allV := true
			for _, c := range arg[1:] {
				if c != 'v' {
					allV = false
					break
				}
			}
			if allV {
				for range arg[1:] {
					result = append(result, "-v")
				}
				continue
			}
		}
		result = append(result, arg)
	}
	return result
}

// Duration is a time.Duration that can be unmarshaled from TOML strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// DefaultConfig returns a Config with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Type: "memory",
			Path: "ui-data.db",
		},
		Lua: LuaConfig{
			Enabled: true,
			Path:    "lua/",
		},
		Registry: RegistryConfig{
			WaitTimeout: Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level:     "info",
			Verbosity: 0,
		},
	}
}

// Load loads configuration from CLI flags, environment variables, and TOML file.
// Priority: CLI flags > env vars > TOML file > defaults
func Load(args []string) (*Config, error) {
	cfg := DefaultConfig()

	args = expandVerbosityFlags(args)

	fs := flag.NewFlagSet("ui-data", flag.ContinueOnError)
	configPath := fs.String("config", "config/config.toml", "TOML configuration file")

	host := fs.String("host", "", "Listen address")
	port := fs.Int("port", 0, "Listen port")

	storage := fs.String("storage", "", "Storage type: memory, sqlite, postgresql")
	storagePath := fs.String("storage-path", "", "SQLite database path")
	storageURL := fs.String("storage-url", "", "PostgreSQL connection URL")
	seed := fs.String("seed", "", "Directory of collections to load at startup")

	lua := fs.Bool("lua", true, "Enable Lua quark functions")
	luaPath := fs.String("lua-path", "", "Lua scripts directory")
	hotReload := fs.Bool("hot-reload", false, "Reload Lua scripts when they change")

	waitTimeout := fs.Duration("wait-timeout", 0, "How long to wait for a store to register")

	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	var verbosity verbosityCounter
	fs.Var(&verbosity, "v", "Verbosity level (use -v, -vv, or -vvv)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.loadTOML(*configPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	cfg.applyEnv()

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *storage != "" {
		cfg.Storage.Type = *storage
	}
	if *storagePath != "" {
		cfg.Storage.Path = *storagePath
	}
	if *storageURL != "" {
		cfg.Storage.URL = *storageURL
	}
	if *seed != "" {
		cfg.Storage.Seed = *seed
	}
	if set["lua"] {
		cfg.Lua.Enabled = *lua
	}
	if *luaPath != "" {
		cfg.Lua.Path = *luaPath
	}
	if set["hot-reload"] {
		cfg.Lua.HotReload = *hotReload
	}
	if *waitTimeout != 0 {
		cfg.Registry.WaitTimeout = Duration(*waitTimeout)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if verbosity > 0 {
		cfg.Logging.Verbosity = int(verbosity)
	}

	return cfg, nil
}

// loadTOML loads configuration from a TOML file.
func (c *Config) loadTOML(path string) error {
	_, err := toml.DecodeFile(path, c)
	return err
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("UIDATA_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("UIDATA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("UIDATA_STORAGE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("UIDATA_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("UIDATA_STORAGE_URL"); v != "" {
		c.Storage.URL = v
	}
	if v := os.Getenv("UIDATA_SEED"); v != "" {
		c.Storage.Seed = v
	}
	if v := os.Getenv("UIDATA_LUA"); v != "" {
		c.Lua.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("UIDATA_LUA_PATH"); v != "" {
		c.Lua.Path = v
	}
	if v := os.Getenv("UIDATA_WAIT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Registry.WaitTimeout = Duration(d)
		}
	}
	if v := os.Getenv("UIDATA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("UIDATA_VERBOSITY"); v != "" {
		if verbosity, err := strconv.Atoi(v); err == nil {
			c.Logging.Verbosity = verbosity
		}
	}
}

// Verbosity returns the configured verbosity level.
func (c *Config) Verbosity() int {
	if c == nil {
		return 0
	}
	return c.Logging.Verbosity
}

// WaitTimeout returns how long a host may wait for its store (0 = forever).
func (c *Config) WaitTimeout() time.Duration {
	if c == nil {
		return 0
	}
	return c.Registry.WaitTimeout.Duration()
}

// Log prints a message when the verbosity is at least level.
// A nil Config logs nothing, so components can be built without one in tests.
func (c *Config) Log(level int, format string, args ...any) {
	if c == nil || c.Logging.Verbosity < level {
		return
	}
	log.Printf("[v%d] "+format, append([]any{level}, args...)...)
}
