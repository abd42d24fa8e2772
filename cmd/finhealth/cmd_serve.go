package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"finhealth/internal/cache"
	"finhealth/internal/config"
	httpapi "finhealth/internal/interfaces/http"
	"finhealth/internal/narrative"
	"finhealth/internal/persistence"
	"finhealth/internal/persistence/postgres"
	"finhealth/internal/router"
	"finhealth/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var (
		host        string
		port        int
		redisAddr   string
		postgresDSN string
		cacheTTL    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP analysis service",
		Long: `Starts the HTTP API with /analyze, /health, /config/reload, per-company run
history and Prometheus /metrics. Redis caching and Postgres persistence are
enabled when their flags are set; without them the service is stateless.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return runServe(cmd.Context(), serveOptions{
				configPath:  configPath,
				host:        host,
				port:        port,
				redisAddr:   redisAddr,
				postgresDSN: postgresDSN,
				cacheTTL:    cacheTTL,
			})
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Listen host")
	cmd.Flags().IntVar(&port, "port", 8080, "Listen port")
	cmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address for result caching (optional)")
	cmd.Flags().StringVar(&postgresDSN, "postgres", "", "Postgres DSN for run persistence (optional)")
	cmd.Flags().DurationVar(&cacheTTL, "cache-ttl", 15*time.Minute, "Cached result TTL")

	return cmd
}

type serveOptions struct {
	configPath  string
	host        string
	port        int
	redisAddr   string
	postgresDSN string
	cacheTTL    time.Duration
}

func runServe(ctx context.Context, opts serveOptions) error {
	store, err := config.NewStore(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	metrics := telemetry.New()
	narrator := narrative.NewReporter()
	rt := router.New(narrator, metrics)

	var resultCache *cache.ResultCache
	if opts.redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis %s: %w", opts.redisAddr, err)
		}
		resultCache = cache.New(client, opts.cacheTTL)
		log.Info().Str("addr", opts.redisAddr).Dur("ttl", opts.cacheTTL).Msg("result cache enabled")
	}

	var repo persistence.AnalysisRepo
	if opts.postgresDSN != "" {
		db, err := sqlx.Connect("postgres", opts.postgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
		repo = postgres.NewAnalysisRepo(db, 5*time.Second)
		log.Info().Msg("run persistence enabled")
	}

	serverCfg := httpapi.DefaultServerConfig()
	serverCfg.Host = opts.host
	serverCfg.Port = opts.port
	server := httpapi.NewServer(serverCfg, store, rt, resultCache, repo, metrics)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
		log.Info().Msg("context cancelled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
