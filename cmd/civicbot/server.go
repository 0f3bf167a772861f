package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/civicbot/internal/api"
	"github.com/kalambet/civicbot/internal/config"
)

const (
	shutdownTimeout = 5 * time.Second
	sendBurst       = 3
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat page and JSON API on localhost (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(cmd.Context(), port, withMCP)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprintln(os.Stderr, versionLine())
		return serveMCP(cmd.Context(), a)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running civicbot server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (default from config)")
	serveCmd.Flags().Bool("mcp", false, "also serve MCP on stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "civicbot.pid")
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

func runServer(ctx context.Context, port int, withMCP bool) error {
	fmt.Fprintln(os.Stderr, versionLine())

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	// Refuse to start twice on the same port.
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port)); err == nil {
		resp.Body.Close()
		printWarning("civicbot is already running on port %d", port)
		return fmt.Errorf("server already running on port %d", port)
	}

	pidPath := pidFilePath(a.cfg.Storage.DataDir)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	handler := api.NewHandler(api.Deps{
		Controller:     a.controller,
		Governor:       a.governor,
		Reports:        a.store,
		Logger:         a.logger.With("component", "http"),
		Model:          a.client.Model(),
		HasCredentials: a.client.HasCredentials(),
		SendLimiter:    api.NewSendLimiter(a.cfg.Governor.MinInterval, sendBurst),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "civicbot listening on http://%s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withMCP {
		printStep("Serving MCP on stdio")
		g.Go(func() error {
			return serveMCP(gctx, a)
		})
	}

	return g.Wait()
}

func serveMCP(ctx context.Context, a *app) error {
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Controller: a.controller,
		Version:    version,
	})
	a.logger.Info("MCP server started (stdio transport)")

	stdio := server.NewStdioServer(mcpSrv)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("civicbot is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop civicbot (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to civicbot (PID %d)", pid)
	return nil
}
