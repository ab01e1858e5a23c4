package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
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

	"github.com/driftline-app/driftline/internal/api"
	"github.com/driftline-app/driftline/internal/comprehension"
	"github.com/driftline-app/driftline/internal/config"
	"github.com/driftline-app/driftline/internal/engagement"
	"github.com/driftline-app/driftline/internal/entitlement"
	"github.com/driftline-app/driftline/internal/exclusion"
	"github.com/driftline-app/driftline/internal/gaps"
	"github.com/driftline-app/driftline/internal/lifecycle"
	"github.com/driftline-app/driftline/internal/ollama"
	"github.com/driftline-app/driftline/internal/reveal"
	"github.com/driftline-app/driftline/internal/risk"
	sig "github.com/driftline-app/driftline/internal/signal"
	"github.com/driftline-app/driftline/internal/storage"
	"github.com/driftline-app/driftline/internal/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the driftline server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running driftline server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show driftline system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "driftline.pid")
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

func runServer() error {
	fmt.Fprintf(os.Stderr, "driftline version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Check for an already-running instance before claiming the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("driftline is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("driftline is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if err := ollama.EnsureReady(ctx, ollamaClient, cfg.Ollama.Model, os.Stderr); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Extraction pipeline and its background worker.
	comp := comprehension.NewClient(ollamaClient, cfg.Ollama.Model)
	extractor := sig.NewExtractor(comp, nil)
	processor := sig.NewProcessor(extractor, store, nil)

	pollInterval, err := time.ParseDuration(cfg.Worker.PollInterval)
	if err != nil {
		slog.Warn("invalid worker poll interval, using default 2s", "value", cfg.Worker.PollInterval, "error", err)
		pollInterval = 2 * time.Second
	}
	jobWorker := worker.NewWorker(store, processor, pollInterval)
	go jobWorker.Run(ctx)

	// Lifecycle, gap prompting, engagement, and reveal scheduling.
	engine := lifecycle.NewEngine(store)
	registry := exclusion.NewRegistry(store)
	detector := gaps.NewDetector(store, registry)
	safety := gaps.NewSafetyFilter(risk.NewChecker())
	engagementMgr := engagement.NewManager(store)
	generator := gaps.NewGenerator(
		detector,
		safety,
		entitlement.NewLocal(cfg.Prompts.Enabled),
		store,
		engagementMgr,
		nil, nil,
	)
	scheduler := reveal.NewScheduler(store)

	appHandler := api.NewAppHandler(api.AppDeps{
		Store:      store,
		Engine:     engine,
		Generator:  generator,
		Engagement: engagementMgr,
		Scheduler:  scheduler,
		Token:      cfg.API.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// MCP server over stdio, so local agents can journal and query
	// without touching the HTTP surface.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:      store,
		Generator:  generator,
		Engagement: engagementMgr,
		UserID:     "local",
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "driftline listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
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
		printError("driftline is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop driftline (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to driftline (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	serverUp := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			serverUp = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Model", "%s", cfg.Ollama.Model)

	if serverUp && cfg.API.Token != "" {
		entriesResp, err := apiGet(client, serverURL+"/entries?limit=100", cfg.API.Token)
		if err == nil {
			var entries []json.RawMessage
			if decodeJSON(entriesResp, &entries) == nil {
				printStatus("Entries", "%s", countLabel(len(entries), 100))
			}
		}
		upcomingResp, err := apiGet(client, serverURL+"/signals/upcoming?days=30", cfg.API.Token)
		if err == nil {
			var upcoming []json.RawMessage
			if decodeJSON(upcomingResp, &upcoming) == nil {
				printStatus("Upcoming signals", "%d (next 30 days)", len(upcoming))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
