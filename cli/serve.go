package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zot/ui-data/internal/config"
	"github.com/zot/ui-data/internal/server"
)

const shutdownTimeout = 10 * time.Second

// newServer loads configuration and creates the server, reporting failures on stderr.
func newServer(args []string) (*server.Server, int) {
	cfg, err := config.Load(args)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return nil, 1
	}
	srv, err := server.New(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create server: %v\n", err)
		return nil, 1
	}
	return srv, 0
}

func shutdown(srv *server.Server) int {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Fprintf(stderr, "Shutdown error: %v\n", err)
		return 1
	}
	return 0
}

func runServe(args []string) int {
	srv, code := newServer(args)
	if srv == nil {
		return code
	}

	srv.StartCleanupWorker(time.Hour)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := srv.Start(); err != nil {
		fmt.Fprintf(stderr, "Server error: %v\n", err)
		shutdown(srv)
		return 1
	}

	<-sigChan
	fmt.Fprintln(stderr, "\nShutting down...")
	return shutdown(srv)
}

// runMCP serves MCP on stdio until the client disconnects or a signal arrives.
func runMCP(args []string) int {
	srv, code := newServer(args)
	if srv == nil {
		return code
	}

	srv.StartCleanupWorker(time.Hour)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() { errChan <- srv.ServeMCP() }()

	exit := 0
	select {
	case err := <-errChan:
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			exit = 1
		}
	case <-sigChan:
	}
	if shutdown(srv) != 0 {
		exit = 1
	}
	return exit
}
