package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/pkg/db"
	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/pkg/log"
	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/pkg/telemetry"
	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/actions"
	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/flow"
	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/integrations"
	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/workflow"
)

const serviceName = "galaxyflow"

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the workflow HTTP API and run scheduled workflows",
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   8080,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "PostgreSQL connection URL",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.IntFlag{
				Name:    "db-max-conns",
				Usage:   "Maximum open database connections",
				Value:   10,
				Sources: cli.EnvVars("DB_MAX_CONNS"),
			},
			&cli.BoolFlag{
				Name:    "seed",
				Usage:   "Insert the sample workflow on startup",
				Value:   true,
				Sources: cli.EnvVars("SEED_DATA"),
			},
			&cli.StringFlag{
				Name:    "jwt-secret",
				Usage:   "HS256 secret for bearer tokens; when empty, X-Workspace-ID headers are trusted",
				Sources: cli.EnvVars("JWT_SECRET"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Publish run events to this Redis server",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-channel-prefix",
				Usage:   "Prefix of the per-workspace event channels",
				Value:   workflow.DefaultChannelPrefix,
				Sources: cli.EnvVars("REDIS_CHANNEL_PREFIX"),
			},
			&cli.StringSliceFlag{
				Name:    "allowed-origins",
				Usage:   "CORS origins allowed to call the API",
				Value:   []string{"http://localhost:3003"},
				Sources: cli.EnvVars("ALLOWED_ORIGINS"),
			},
			&cli.DurationFlag{
				Name:    "run-timeout",
				Usage:   "Default time limit of a single run",
				Value:   workflow.DefaultRunTimeout,
				Sources: cli.EnvVars("RUN_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "max-visits",
				Usage:   "How many times one run may enter the same node",
				Value:   flow.DefaultMaxVisits,
				Sources: cli.EnvVars("MAX_VISITS"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP/HTTP (configured by OTEL_EXPORTER_OTLP_*)",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		}, integrationFlags()...),
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := log.Setup(cmd.String("log-level"), cmd.String("log-format"))
	if err != nil {
		return err
	}

	if cmd.Bool("otel") {
		tp, err := telemetry.NewTracerProvider(ctx, serviceName)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("Failed to flush traces", "error", err)
			}
		}()
	}

	pool, err := db.Connect(ctx, db.Config{
		URI:            cmd.String("database-url"),
		MaxConns:       int32(cmd.Int("db-max-conns")),
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := workflow.InitDB(ctx, pool, cmd.Bool("seed")); err != nil {
		return err
	}
	repo := workflow.NewRepository(pool)
	executions := workflow.NewExecutionRepository(pool)
	connections := workflow.NewConnectionRepository(pool)

	registry := integrations.NewDefaultRegistry(
		integrations.TokenChain{connections, staticTokens(cmd)},
		integrationConfig(cmd),
	)

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []flow.Option{
		flow.WithActions(actions.NewRegistry(nil)),
		flow.WithIntegrations(registry),
		flow.WithMaxVisits(int(cmd.Int("max-visits"))),
		flow.WithLogger(logger),
		flow.WithTracer(telemetry.Tracer(serviceName)),
		flow.WithObserver(workflow.NewMetrics(metricsRegistry)),
	}

	if url := cmd.String("redis-url"); url != "" {
		redisOpts, err := redis.ParseURL(url)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		opts = append(opts, flow.WithObserver(workflow.NewRedisPublisher(client, cmd.String("redis-channel-prefix"))))
	}

	auth := workflow.NewAuthenticator(cmd.String("jwt-secret"))
	if auth.DevMode() {
		slog.Warn("JWT secret is not set, trusting X-Workspace-ID headers")
	}

	svc := workflow.NewService(repo, executions, connections, workflow.Config{
		Executor:     flow.NewExecutor(opts...),
		Integrations: registry,
		Auth:         auth,
		RunTimeout:   cmd.Duration("run-timeout"),
	})

	scheduler := workflow.NewScheduler(svc.RunScheduled)
	svc.SetScheduler(scheduler)
	if err := scheduler.Load(ctx, repo); err != nil {
		return err
	}
	scheduler.Start(ctx)

	// setup router
	mainRouter := mux.NewRouter()
	mainRouter.Handle("/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})).Methods("GET")
	mainRouter.HandleFunc("/healthz", healthz(pool)).Methods("GET")

	apiRouter := mainRouter.PathPrefix("/api/v1").Subrouter()
	svc.LoadRoutes(apiRouter)

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins(cmd.StringSlice("allowed-origins")),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Workspace-ID", "X-User-ID"}),
		handlers.AllowCredentials(),
	)(mainRouter)

	addr := fmt.Sprintf(":%d", cmd.Int("port"))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handlers.RecoveryHandler()(corsHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		slog.Error("Server error", "error", err)
		stopRuns(scheduler, svc.Runs(), shutdownTimeout)
		return err

	case <-ctx.Done():
		slog.Info("Shutdown signal received")

		if !stopRuns(scheduler, svc.Runs(), shutdownTimeout) {
			slog.Warn("Scheduled runs still running at shutdown")
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Could not stop server gracefully", "error", err)
			srv.Close()
		}
	}
	return nil
}

const shutdownTimeout = 5 * time.Second

// stopRuns stops firing schedules, cancels every in-flight run and waits up
// to timeout for scheduled runs to return. It reports whether they did.
func stopRuns(scheduler *workflow.Scheduler, runs *workflow.RunRegistry, timeout time.Duration) bool {
	done := scheduler.Stop()
	runs.CancelAll()

	select {
	case <-done.Done():
		return true
	case <-time.After(timeout):
		return false
	}
}

func healthz(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		status, code := "ok", http.StatusOK
		if err := pool.Ping(ctx); err != nil {
			slog.Warn("Health check failed", "error", err)
			status, code = "unavailable", http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
