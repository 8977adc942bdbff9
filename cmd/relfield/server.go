package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/relfield/internal/api"
	"github.com/kalambet/relfield/internal/config"
	"github.com/kalambet/relfield/internal/metrics"
	"github.com/kalambet/relfield/internal/resolver"
	"github.com/kalambet/relfield/internal/storage"
	"github.com/kalambet/relfield/internal/syncer"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the relfield server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		noMCP, _ := cmd.Flags().GetBool("no-mcp")
		return runServer(!noMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running relfield server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show relfield status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("no-mcp", false, "do not serve MCP tools on stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "relfield.pid")
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

func runServer(serveMCP bool) error {
	printStep("relfield version %s", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	jc, err := newJiraClient(cfg)
	if err != nil {
		return err
	}

	token, err := config.GetResolverToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing resolver token: %w", err)
	}
	slog.Info("resolver bearer token available")

	// Refuse to start twice: a live health endpoint means another instance.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("relfield is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("relfield is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			printWarning("closing storage: %v", err)
		}
	}()

	m := metrics.New()
	res := resolver.New(jc, m)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(api.Deps{Resolver: res, Token: token, Metrics: m}),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if serveMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Parser:   jc,
			Searcher: jc,
			Issues:   jc,
			Resolver: res,
			FieldID:  cfg.Field.ID,
			SiteURL:  cfg.Jira.BaseURL,
			PageSize: cfg.Search.PageSize,
			Metrics:  m,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	g, gctx := errgroup.WithContext(ctx)

	worker := syncer.NewWorker(store, jc, m, 500*time.Millisecond)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		printSuccess("relfield listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		printStep("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
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
		printError("relfield is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop relfield (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to relfield (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Jira", "%s", valueOr(cfg.Jira.BaseURL, "not configured"))
	printStatus("Field", "%s", valueOr(cfg.Field.ID, "not configured"))

	if store, err := openStore(cfg); err == nil {
		printStoredConfigurations(store)
		printJobCounts(store)
		store.Close()
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func printJobCounts(store *storage.Store) {
	counts, err := store.CountJobsByStatus()
	if err != nil {
		printStatus("Sync jobs", "unavailable (%v)", err)
		return
	}
	printStatus("Sync jobs", "%d pending, %d running, %d failed, %d completed",
		counts[storage.JobPending], counts[storage.JobRunning], counts[storage.JobFailed], counts[storage.JobCompleted])
}

func printStoredConfigurations(store *storage.Store) {
	configs, err := store.ListFieldConfigurations()
	if err != nil {
		printStatus("Saved queries", "unavailable (%v)", err)
		return
	}
	printStatus("Saved queries", "%d", len(configs))
	for _, fc := range configs {
		fmt.Printf("    %s %s  %s\n", fc.FieldID, colorize(styleFaint, valueOr(fc.ContextID, "(no context)")), fc.JQL)
	}
}

// printFailedJobs lists the most recent failures with their last error.
func printFailedJobs(store *storage.Store, limit int) {
	jobs, err := store.ListJobs(storage.JobFailed, limit)
	if err != nil || len(jobs) == 0 {
		return
	}
	fmt.Println()
	for _, j := range jobs {
		fmt.Printf("  %s %s  %s\n", colorize(styleError, "✗"), j.Type, colorize(styleFaint, j.UpdatedAt.Local().Format(time.DateTime)))
		fmt.Printf("    %s\n", j.LastError)
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
