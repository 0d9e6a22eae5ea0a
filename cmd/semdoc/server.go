package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/semdoc/internal/api"
	"github.com/kalambet/semdoc/internal/config"
	"github.com/kalambet/semdoc/internal/engine"
	"github.com/kalambet/semdoc/internal/ollama"
	"github.com/kalambet/semdoc/internal/stats"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the semdoc HTTP server (foreground)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running semdoc server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show semdoc server status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the document tools over MCP on stdin/stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "semdoc.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(ctx context.Context) error {
	fmt.Fprintf(os.Stderr, "semdoc version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	base := localURL(cfg.Server)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(base + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidFilePath(cfg.Index.DataDir)); pidErr == nil {
			printWarning("semdoc is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("semdoc is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}

	a, err := buildApp(ctx, cfg, logger, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}()

	pidPath := pidFilePath(cfg.Index.DataDir)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	handler := api.NewHandler(api.Deps{
		Documents: a.docs,
		Graph:     a.graph,
		Stats:     a.stats,
		Metrics:   a.metrics,
		Info:      a.info,
		Defaults:  a.defaults,
		Logger:    logger,
	})

	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("semdoc listening", "addr", addr, "collection", a.info.Collection)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runMCP serves MCP on stdio. Stdout carries the protocol, so every log line
// and engine message goes to stderr.
func runMCP(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	a, err := buildApp(ctx, cfg, logger, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Documents: a.docs,
		Graph:     a.graph,
		Stats:     a.stats,
		Defaults:  a.defaults,
		Version:   version,
	})
	logger.Info("MCP server started (stdio transport)", "collection", a.info.Collection)
	err = server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pidPath := pidFilePath(cfg.Index.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("semdoc is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		removePIDFile(pidPath)
		return fmt.Errorf("stopping semdoc (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to semdoc (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		} else {
			printStatus("Server", "running at %s", client.baseURL)
			showServerDetails(ctx, client)
		}
	}

	printStatus("Provider", "%s", cfg.Embedding.Provider)
	if cfg.Embedding.Provider == engine.ProviderOllama {
		base := cfg.Embedding.BaseURL
		if base == "" {
			base = engine.DefaultOllamaURL
		}
		if v, err := ollama.New(base).Version(ctx); err != nil {
			printStatus("Ollama", "not reachable at %s", base)
		} else {
			printStatus("Ollama", "%s at %s", v, base)
		}
	}
	printStatus("Data dir", "%s", cfg.Index.DataDir)
	printStatus("Config", "%s", config.ConfigFilePath())
	return nil
}

func showServerDetails(ctx context.Context, client *apiClient) {
	var info api.Info
	if resp, err := client.get(ctx, "/api/info"); err == nil && decodeJSON(resp, &info) == nil {
		printStatus("Version", "%s", info.Version)
		printStatus("Collection", "%s", info.Collection)
		printStatus("Model", "%s (%d dimensions)", info.Model, info.Dimension)
	}
	var st stats.CollectionStats
	if resp, err := client.get(ctx, "/api/documents/stats"); err == nil && decodeJSON(resp, &st) == nil {
		printStatus("Documents", "%d", st.TotalDocuments)
	}
}
