package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/commandcenter/internal/config"
	"github.com/mtlprog/commandcenter/internal/database"
	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/handler"
	"github.com/mtlprog/commandcenter/internal/logger"
	"github.com/mtlprog/commandcenter/internal/metrics"
	"github.com/mtlprog/commandcenter/internal/notify"
	"github.com/mtlprog/commandcenter/internal/orchestrator"
	"github.com/mtlprog/commandcenter/internal/repository"
	"github.com/mtlprog/commandcenter/internal/service"
)

func main() {
	app := &cli.App{
		Name:  "commandcenter",
		Usage: "Control plane for policy-gated agent runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:     "database-url",
				Aliases:  []string{"d"},
				Value:    config.DefaultDatabaseURL,
				Usage:    "PostgreSQL database URL",
				EnvVars:  []string{"DATABASE_URL"},
				Required: true,
			},
			&cli.IntFlag{
				Name:    "db-max-conns",
				Usage:   "Maximum database connections",
				EnvVars: []string{"DB_MAX_CONNS"},
			},
			&cli.StringFlag{
				Name:    "runtime-url",
				Value:   config.DefaultRuntimeURL,
				Usage:   "Runtime orchestrator base URL",
				EnvVars: []string{"RUNTIME_API_URL"},
			},
			&cli.DurationFlag{
				Name:    "runtime-timeout",
				Value:   config.DefaultRuntimeTimeout,
				Usage:   "Timeout for each runtime orchestrator call",
				EnvVars: []string{"RUNTIME_API_TIMEOUT"},
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for run change notifications (optional)",
				EnvVars: []string{"REDIS_URL"},
			},
			&cli.StringFlag{
				Name:    "bootstrap-config",
				Usage:   "Path to the bootstrap seed YAML (optional)",
				EnvVars: []string{"BOOTSTRAP_CONFIG"},
			},
			&cli.IntFlag{
				Name:    "reconcile-concurrency",
				Value:   config.DefaultReconcileConcurrency,
				Usage:   "Parallel runtime polls during a workspace reconcile",
				EnvVars: []string{"RECONCILE_CONCURRENCY"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.Setup(logger.ParseLevel(c.String("log-level")))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the web server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Value:   config.DefaultPort,
						Usage:   "HTTP server port",
						EnvVars: []string{"PORT"},
					},
				},
				Action: runServe,
			},
			{
				Name:   "bootstrap",
				Usage:  "Apply migrations and the bootstrap seed, then exit",
				Action: runBootstrap,
			},
			{
				Name:  "reconcile",
				Usage: "Sync every in-flight run of a workspace with the runtime orchestrator",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "workspace",
						Usage: "Workspace id (default: the bootstrap workspace)",
					},
				},
				Action: runReconcile,
			},
		},
		Action: runServe,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

// runtimeEnv holds the process-wide resources shared by all commands.
type runtimeEnv struct {
	db       *database.DB
	repos    *repository.Set
	scope    domain.Scope
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	client   *orchestrator.Client
	notifier service.RunNotifier
	closers  []func()
}

func (e *runtimeEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// setup connects, migrates and bootstraps. The caller must Close the result.
func setup(c *cli.Context) (*runtimeEnv, error) {
	ctx := c.Context
	env := &runtimeEnv{}

	seed, err := config.LoadBootstrap(c.String("bootstrap-config"))
	if err != nil {
		return nil, err
	}

	db, err := database.New(ctx, c.String("database-url"), database.PoolConfig{
		MaxConns: int32(c.Int("db-max-conns")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	env.db = db
	env.closers = append(env.closers, db.Close)

	if err := database.RunMigrations(ctx, db.Pool()); err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	env.repos = repository.NewSet(db.Pool())
	scope, err := service.NewBootstrapper(db.Pool(), env.repos, seed).Ensure(ctx)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to bootstrap workspace: %w", err)
	}
	env.scope = scope

	env.registry = prometheus.NewRegistry()
	env.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	env.metrics = metrics.New(env.registry)

	env.client = orchestrator.New(orchestrator.Config{
		BaseURL: c.String("runtime-url"),
		Timeout: c.Duration("runtime-timeout"),
	}, env.metrics)

	env.notifier = notify.Nop{}
	if redisURL := c.String("redis-url"); redisURL != "" {
		rn, err := notify.Dial(ctx, redisURL)
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		env.notifier = rn
		env.closers = append(env.closers, func() {
			if err := rn.Close(); err != nil {
				slog.Warn("failed to close redis client", "error", err)
			}
		})
	}

	return env, nil
}

func runServe(c *cli.Context) error {
	ctx := c.Context

	port := c.String("port")
	if port == "" {
		port = config.DefaultPort
	}

	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.Close()

	h := handler.New(env.db.Pool(), handler.Options{
		Scope:                env.scope,
		Runtime:              env.client,
		Notifier:             env.notifier,
		Metrics:              env.metrics,
		Gatherer:             env.registry,
		ReconcileConcurrency: c.Int("reconcile-concurrency"),
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server",
			"server_addr", "http://localhost:"+port,
			"workspace_id", env.scope.WorkspaceID,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-done:
		slog.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func runBootstrap(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.Close()

	slog.Info("bootstrap complete", "workspace_id", env.scope.WorkspaceID, "actor", env.scope.Actor)
	return nil
}

func runReconcile(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.Close()

	workspaceID := c.String("workspace")
	if workspaceID == "" {
		workspaceID = env.scope.WorkspaceID
	}
	if _, err := env.repos.Workspaces.GetByID(c.Context, workspaceID); err != nil {
		return err
	}

	reconciler := service.NewReconciler(env.db.Pool(), env.repos, env.client, env.notifier, env.metrics, c.Int("reconcile-concurrency"))
	summary, err := reconciler.ReconcileWorkspace(c.Context, workspaceID)
	if err != nil {
		return fmt.Errorf("reconcile workspace %s: %w", workspaceID, err)
	}

	slog.Info("reconcile complete",
		"workspace_id", workspaceID,
		"checked", summary.Checked,
		"changed", summary.Changed,
		"failed", summary.Failed,
	)
	return nil
}
