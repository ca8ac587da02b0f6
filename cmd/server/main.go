/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the POS sales engine server. Handles configuration,
  dependency injection, and graceful shutdown.

COMMANDS:
  serve         Start the HTTP server
  check-config  Load the configuration, validate the rate table, print it

STARTUP SEQUENCE (serve):
  1. Load YAML config (+ SALES_* environment overrides)
  2. Build and validate the rate table (invalid config aborts startup)
  3. Open the payment store (SQLite or memory)
  4. Open the statement cache (memory + janitor, Redis, or none)
  5. Wire processor, aggregator, metrics, and router
  6. Start server with graceful shutdown

FLAGS:
  --config  YAML config path (default: none, built-in defaults)
  --port    HTTP port, overrides server.port
  --db      SQLite path, overrides database.path (":memory:" allowed)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the cache janitor, close cache and database
  4. Exit

EXAMPLES:
  ./server serve --config ./config.yaml
  ./server serve --db=":memory:" --port 3000
  ./server check-config --config ./config.yaml
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/anyx/sales-engine/api"
	"github.com/anyx/sales-engine/cache"
	"github.com/anyx/sales-engine/config"
	"github.com/anyx/sales-engine/metrics"
	"github.com/anyx/sales-engine/sales"
	salesstore "github.com/anyx/sales-engine/sales/store"
	"github.com/anyx/sales-engine/store/sqlite"
)

const serviceName = "sales-engine"

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "server",
		Short:        "POS payment processing and sales statements",
		Version:      Version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(checkConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := serveConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cfg, newLogger(cfg.Log, os.Stdout))
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP server port")
	cmd.Flags().String("db", "sales.db", "SQLite database path")
	return cmd
}

func checkConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print the rate table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rates, err := cfg.RateTable()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range rates.Methods() {
				e, _ := rates.Lookup(m)
				fmt.Fprintf(out, "%-17s modifier [%s, %s]  points %s\n",
					m, e.ModifierMin, e.ModifierMax, e.PointRate)
			}
			fmt.Fprintf(out, "retry: %d attempts, backoff %s\n", cfg.Retry.Attempts, cfg.Retry.Backoff)
			fmt.Fprintf(out, "cache: %s, ttl %s\n", cfg.Cache.Backend, cfg.Cache.TTL)
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// serveConfig loads the config and applies the serve flags on top. Flag
// values go through the same validation as file values.
func serveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("db") {
		cfg.Database.Path, _ = cmd.Flags().GetString("db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", serviceName).Logger()
}

func serve(cfg *config.Config, logger zerolog.Logger) error {
	// Invalid rate configuration must stop the process before it serves anything
	rates, err := cfg.RateTable()
	if err != nil {
		return fmt.Errorf("rate table: %w", err)
	}

	store, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	statementCache, closeCache, err := openCache(cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	collector := metrics.New()
	opts := []sales.Option{
		sales.WithRetryPolicy(cfg.RetryPolicy()),
		sales.WithObserver(collector),
		sales.WithLogger(logger),
		sales.WithCacheTTL(cfg.Cache.TTL),
		sales.WithCoalescing(cfg.Cache.Coalesce),
	}
	processor := sales.NewProcessor(store, rates, opts...)
	aggregator := sales.NewAggregator(store, statementCache, opts...)

	handler := api.NewHandler(processor, aggregator, rates, store)
	router := api.NewRouter(handler, logger, collector)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Server.Port).
			Str("database", cfg.Database.Driver).
			Str("cache", cfg.Cache.Backend).
			Strs("payment_methods", methodNames(rates)).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal or listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-quit:
	}

	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info().Msg("server stopped")
	return nil
}

// paymentStore is what the server needs from a store backend.
type paymentStore interface {
	sales.Store
	api.Pinger
	Close() error
}

func openStore(cfg config.DatabaseConfig) (paymentStore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return salesstore.NewMemory(), nil
	default:
		store, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return store, nil
	}
}

func openCache(cfg config.CacheConfig, logger zerolog.Logger) (sales.Cache, func(), error) {
	switch cfg.Backend {
	case config.CacheNone:
		return nil, func() {}, nil
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		c := cache.NewRedis(client, cfg.RedisPrefix)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Ping(ctx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		return c, func() { client.Close() }, nil
	default:
		c := cache.NewMemory()
		janitor := cache.NewJanitor(c, cfg.JanitorInterval, logger.With().Str("component", "cache-janitor").Logger())
		janitor.Start()
		return c, janitor.Stop, nil
	}
}

func methodNames(rates *sales.RateTable) []string {
	methods := rates.Methods()
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	return names
}
