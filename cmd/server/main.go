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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/stockleague/league/internal/api"
	"github.com/stockleague/league/internal/auth"
	"github.com/stockleague/league/internal/config"
	"github.com/stockleague/league/internal/feed"
	"github.com/stockleague/league/internal/leaderboard"
	"github.com/stockleague/league/internal/league"
	"github.com/stockleague/league/internal/quote"
	"github.com/stockleague/league/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:           "league",
		Short:         "Fantasy stock-trading league server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), leaderboardCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required for migrate")
			}
			pool, err := pgxpool.New(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()
			if err := store.NewPostgresStore(pool).Migrate(cmd.Context()); err != nil {
				return err
			}
			slog.Info("schema up to date")
			return nil
		},
	}
}

func leaderboardCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the current standings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			users, err := st.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			leaderboard.WriteTable(cmd.OutOrStdout(), leaderboard.Top(leaderboard.Rank(users, cfg.InitialBalance), limit))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of entries to print (0 for all)")
	return cmd
}

// setup loads configuration and installs the JSON logger.
func setup() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return cfg, nil
}

// openStore returns PostgreSQL when DATABASE_URL is set, else memory.
func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		return store.NewMemoryStore(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("database ping failed: %w", err)
	}
	slog.Info("connected to PostgreSQL")
	return store.NewPostgresStore(pool), pool.Close, nil
}

// openOracle builds the configured price source, instrumented and, when
// REDIS_URL is set, cached.
func openOracle(cfg config.Config) (quote.Oracle, func(), error) {
	var o quote.Oracle
	switch cfg.QuoteProvider {
	case config.ProviderTwelveData:
		o = quote.NewTwelveData(cfg.TwelveDataAPIKey, cfg.QuoteTimeout)
	case config.ProviderPolygon:
		o = quote.NewPolygon(cfg.PolygonAPIKey)
	case config.ProviderStatic:
		s, err := quote.ParseStatic(cfg.StaticPrices)
		if err != nil {
			return nil, nil, err
		}
		o = s
	default:
		return nil, nil, fmt.Errorf("unknown quote provider %q", cfg.QuoteProvider)
	}
	o = quote.NewInstrumented(o, cfg.QuoteProvider)
	slog.Info("quote provider selected", "provider", cfg.QuoteProvider)

	if cfg.RedisURL == "" {
		return o, func() {}, nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	slog.Info("Redis quote cache enabled", "ttl", cfg.QuoteCacheTTL.String())
	return quote.NewCached(o, rdb, cfg.QuoteCacheTTL), func() { rdb.Close() }, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if ps, ok := st.(*store.PostgresStore); ok {
		if err := ps.Migrate(ctx); err != nil {
			return err
		}
	}

	oracle, closeOracle, err := openOracle(cfg)
	if err != nil {
		return err
	}
	defer closeOracle()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := feed.NewHub(cfg.WebSocketOrigin)
	go hub.Run(ctx)

	issuer := auth.NewIssuer(cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)
	svc := league.NewService(st, oracle, issuer, cfg.InitialBalance, hub)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.RouterDeps{
			Service:       svc,
			WSHandler:     hub.HandleWS,
			AllowedOrigin: cfg.WebSocketOrigin,
			AccessLog:     true,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("league listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down league...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	return nil
}
