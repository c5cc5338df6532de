// Package cli provides the command-line interface for ui-data.
// It exports Run() and RunWithHooks() to allow extension by wrapper projects.
package cli

import (
	"fmt"
	"io"
	"os"
)

// Version is the ui-data release.
const Version = "0.1.0"

// stdout and stderr are where commands print; tests replace them.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Hooks allows extending the CLI with additional commands.
type Hooks struct {
	// BeforeDispatch is called before command dispatch.
	// Return (handled=true, exitCode) to skip normal dispatch.
	BeforeDispatch func(command string, args []string) (handled bool, exitCode int)

	// CustomHelp returns additional help text to append.
	CustomHelp func() string

	// CustomVersion returns version info to append (optional).
	CustomVersion func() string
}

// Run executes the CLI with the given arguments.
// Returns exit code (0 = success, non-zero = error).
func Run(args []string) int {
	return RunWithHooks(args, nil)
}

// RunWithHooks executes CLI with extension hooks.
func RunWithHooks(args []string, hooks *Hooks) int {
	if len(args) < 1 {
		return runServe(args)
	}

	command := args[0]
	cmdArgs := args[1:]

	// Let hooks intercept first
	if hooks != nil && hooks.BeforeDispatch != nil {
		if handled, code := hooks.BeforeDispatch(command, cmdArgs); handled {
			return code
		}
	}

	switch command {
	case "serve":
		return runServe(cmdArgs)
	case "mcp":
		return runMCP(cmdArgs)
	case "stores", "read", "write", "search", "poll":
		return runClientCommand(command, cmdArgs)
	case "bundle":
		return runBundle(cmdArgs)
	case "extract":
		return runExtract(cmdArgs)
	case "ls":
		return runLs(cmdArgs)
	case "help", "-h", "--help":
		printHelp(hooks)
		return 0
	case "version", "--version":
		printVersion(hooks)
		return 0
	default:
		// Check if it's a flag (starts with -)
		if len(command) > 0 && command[0] == '-' {
			return runServe(args)
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printHelp(hooks)
		return 1
	}
}

func printHelp(hooks *Hooks) {
	fmt.Fprintln(stdout, `UI Data Server

Usage: ui-data [command] [options]

Server Commands:
  serve           Start the data server (default)
  mcp             Start the data server and serve MCP tools on stdio

Bundle Commands:
  bundle          Append a data directory (seed/, lua/) to a copy of the binary
                  ui-data bundle [-src BINARY] -o OUTPUT DATA-DIR
  extract [DIR]   Extract the bundled data directory (default: .)
  ls              List the bundled files

Client Commands:
  stores          List the stores of a running server
  read ID         Read a store's window
  write ID JSON   Write records through a store
  search ID VALUE Search a cached store
  poll ID         Print the events of a store as they happen

Server Options:
  --config        TOML configuration file (default: config/config.toml)
  --host          Listen address (default: 0.0.0.0)
  --port          Listen port (default: 8080)
  --storage       Data source storage: memory, sqlite, postgresql
  --storage-path  SQLite database path
  --storage-url   PostgreSQL connection URL
  --seed          Directory of .json/.yaml collections to load at startup
  --lua           Enable Lua quark functions (default: true)
  --lua-path      Lua scripts directory
  --hot-reload    Reload Lua scripts when they change
  --wait-timeout  How long to wait for a store to register
  --log-level     Log level: debug, info, warn, error
  -v, -vv, -vvv   Verbosity

Client Options:
  --url           Server URL (default: http://127.0.0.1:8080)
  --skip, --limit, --sort, --filter   Window for read
  --wait          Long-poll wait for poll (default: 30s)

Examples:
  ui-data serve --port 8080 --seed data/seed
  ui-data bundle -o my-data data/
  ui-data read users --limit 10 --sort '[{"col":"name"}]'
  ui-data write users '{"name": "Alice"}'
  ui-data poll users`)

	if hooks != nil && hooks.CustomHelp != nil {
		fmt.Fprintln(stdout, hooks.CustomHelp())
	}
}

func printVersion(hooks *Hooks) {
	fmt.Fprintf(stdout, "UI Data v%s\n", Version)
	if hooks != nil && hooks.CustomVersion != nil {
		fmt.Fprintln(stdout, hooks.CustomVersion())
	}
}
