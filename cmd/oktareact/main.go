// oktareact runs the ReAct-style investigation agent that answers natural
// language questions about an Okta tenant by planning, iterating, and
// synthesizing a final, executable query.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/oktareact/core/pkg/agent/formatter"
	"github.com/oktareact/core/pkg/agent/planner"
	"github.com/oktareact/core/pkg/agent/react"
	"github.com/oktareact/core/pkg/agent/relation"
	"github.com/oktareact/core/pkg/agent/synthesis"
	"github.com/oktareact/core/pkg/api"
	"github.com/oktareact/core/pkg/catalog"
	"github.com/oktareact/core/pkg/config"
	"github.com/oktareact/core/pkg/database"
	"github.com/oktareact/core/pkg/events"
	"github.com/oktareact/core/pkg/health"
	"github.com/oktareact/core/pkg/llm"
	"github.com/oktareact/core/pkg/oktaclient"
	"github.com/oktareact/core/pkg/process"
	"github.com/oktareact/core/pkg/ratelimit"
	"github.com/oktareact/core/pkg/sandbox"
	"github.com/oktareact/core/pkg/sqlschema"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "oktareact",
		Short: "ReAct-style agent for querying an Okta tenant",
	}
	rootCmd.PersistentFlags().StringVar(&configDir,
		"config-dir", getEnv("CONFIG_DIR", "./deploy/config"),
		"path to configuration directory")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API and gRPC health server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configDir)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(configDir)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "replay <process_id>",
		Short: "print a persisted process's full event history and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(configDir, args[0])
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("oktareact dev")
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(ctx context.Context, configDir string) (*config.Config, error) {
	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	return config.Initialize(ctx, configDir)
}

func runMigrate(configDir string) error {
	ctx := context.Background()

	cfg, err := loadConfig(ctx, configDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbClient, err := database.NewClient(ctx, database.FromAppConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Warn("error closing database client", "error", err)
		}
	}()

	slog.Info("migrations applied")
	return nil
}

// runReplay prints a persisted process's full durable event history, in
// sequence order, for offline debugging — a read path over the same
// events.Store.Catchup the SSE/WebSocket reconnect path uses, just without
// a live Bus to merge against.
func runReplay(configDir, processID string) error {
	ctx := context.Background()

	cfg, err := loadConfig(ctx, configDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbClient, err := database.NewClient(ctx, database.FromAppConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Warn("error closing database client", "error", err)
		}
	}()

	store := events.NewStore(dbClient.Client)
	history, err := store.Catchup(ctx, processID, 0)
	if err != nil {
		return fmt.Errorf("failed to load event history for %s: %w", processID, err)
	}

	for _, ev := range history {
		fmt.Printf("%d\t%s\t%s\n", ev.Seq, ev.Kind, string(ev.Payload))
	}

	return nil
}

// runServe wires every collaborator the Process Supervisor needs — Chat
// Model Gateway, operational database, Okta-tenant mirror database, Okta
// REST client, Sandbox Proxy/Executor — and starts the Gin HTTP API plus a
// gRPC health server alongside it, mirroring cmd/tarsy/main.go's service
// assembly sequence.
func runServe(configDir string) error {
	ctx := context.Background()

	cfg, err := loadConfig(ctx, configDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	gin.SetMode(getEnv("GIN_MODE", "debug"))

	slog.Info("starting oktareact", "config_dir", configDir, "http_port", cfg.Server.HTTPPort)

	hs, err := health.Serve(":0")
	if err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}
	defer hs.Stop()
	hs.SetServing(false)

	dbClient, err := database.NewClient(ctx, database.FromAppConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Warn("error closing database client", "error", err)
		}
	}()
	hs.SetComponentServing("database", true)
	slog.Info("connected to operational database")

	mirrorDB, err := database.OpenMirror(ctx, cfg.MirrorDatabase)
	if err != nil {
		return fmt.Errorf("failed to connect to mirror database: %w", err)
	}
	defer mirrorDB.Close()
	slog.Info("connected to Okta tenant mirror database")

	gateway, err := llm.NewGateway(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to initialize chat model gateway: %w", err)
	}
	defer func() {
		if err := gateway.Close(); err != nil {
			slog.Warn("error closing chat model gateway", "error", err)
		}
	}()
	hs.SetComponentServing("llm_gateway", true)

	apiToken := os.Getenv(cfg.Okta.APITokenEnv)
	if apiToken == "" {
		return fmt.Errorf("environment variable %s (okta.api_token_env) is not set", cfg.Okta.APITokenEnv)
	}
	oktaClient := oktaclient.New(cfg.Okta.BaseURL, apiToken)

	cat := catalog.Builtin()
	schemaView := sqlschema.Builtin()
	sqlExecutor := sqlschema.NewExecutor(mirrorDB)

	governor := ratelimit.NewGovernor(cfg.Limits.APIRequestsPerSecond, cfg.Limits.APIConcurrentLimit)

	// One Proxy/Executor pair for the whole service's lifetime: rowCap,
	// sqlTimeout, and the Governor are config-level constants rather than
	// per-process state, and the Proxy's own per-call token keeps concurrent
	// processes' sandboxed executions isolated from one another.
	proxy, err := sandbox.NewProxy(cat, governor, oktaClient.Call, sqlExecutor, cfg.Limits.SQLRowCap, cfg.Limits.FinalExecutionTimeout())
	if err != nil {
		return fmt.Errorf("failed to start sandbox proxy: %w", err)
	}
	defer proxy.Close()

	scratchRoot := filepath.Join(os.TempDir(), "oktareact-sandbox")
	sandboxExecutor, err := sandbox.NewExecutor(sandbox.DefaultConfig(scratchRoot), proxy)
	if err != nil {
		return fmt.Errorf("failed to start sandbox executor: %w", err)
	}

	supervisor := process.New(process.Dependencies{
		Gateway:     gateway,
		EntClient:   dbClient.Client,
		Catalog:     cat,
		SchemaView:  schemaView,
		SQLExecutor: sqlExecutor,
		Sandbox:     sandboxExecutor,
	}, process.Config{
		MaxWall:          cfg.Limits.MaxWall(),
		CancelGrace:      cfg.Limits.CancelGrace(),
		EventBusCapacity: cfg.Limits.EventBufferSize,
		PreviewCap:       cfg.Limits.PreviewCap,
		SQLRowCap:        cfg.Limits.SQLRowCap,
		MaxOutputBytes:   int64(cfg.Limits.MaxStoredBytesPerStep),
		StepTimeout:      cfg.Limits.IterationTimeout(),
		Planner:          planner.Config{MaxRetries: cfg.Limits.PlannerMaxRetries, CallTimeout: cfg.Limits.IterationTimeout()},
		React: react.Config{
			MaxTurns:               cfg.Limits.MaxTurns,
			MaxWall:                cfg.Limits.MaxWall(),
			TurnTimeout:            cfg.Limits.IterationTimeout(),
			MaxConsecutiveFailures: 3,
		},
		Relation:  relation.Config{CallTimeout: cfg.Limits.IterationTimeout()},
		Synthesis: synthesis.Config{CallTimeout: cfg.Limits.IterationTimeout(), ExecuteTimeout: cfg.Limits.FinalExecutionTimeout(), MaxOutputBytes: int64(cfg.Limits.MaxStoredBytesPerStep)},
		Formatter: formatter.Config{MaxRowsInline: cfg.Limits.PreviewCap, CallTimeout: cfg.Limits.IterationTimeout()},
	})

	server := api.NewServer(supervisor)
	router := gin.Default()
	server.Routes(router)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: router,
	}

	go func() {
		slog.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server stopped with error", "error", err)
		}
	}()

	hs.SetServing(true)
	slog.Info("oktareact ready", "health_addr", hs.Addr())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("received shutdown signal", "signal", sig.String())

	hs.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during http server shutdown", "error", err)
		return err
	}

	slog.Info("oktareact stopped")
	return nil
}
