package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edgekit/esi-assembler/pkg/assembler"
	"github.com/edgekit/esi-assembler/pkg/cache"
	"github.com/edgekit/esi-assembler/pkg/logging"
)

// maxDocumentBytes caps an /assemble request body.
const maxDocumentBytes = 16 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assembly HTTP server",
	RunE:  runServe,
}

var serveFlags struct {
	addr           string
	baseURL        string
	cacheBackend   string
	redisAddr      string
	timeout        time.Duration
	maxConcurrency int
	logLevel       string
	logPretty      bool
}

func init() {
	flags := serveCmd.Flags()
	flags.StringVar(&serveFlags.addr, "addr", getEnv("ADDR", ":8080"), "listen address")
	flags.StringVar(&serveFlags.baseURL, "base-url", getEnv("BASE_URL", ""), "base URL for relative directive sources")
	flags.StringVar(&serveFlags.cacheBackend, "cache", getEnv("CACHE", "memory"), "fragment cache backend: memory, redis, off")
	flags.StringVar(&serveFlags.redisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "redis address for --cache=redis")
	flags.DurationVar(&serveFlags.timeout, "fragment-timeout", 5*time.Second, "per-fragment fetch timeout (0 disables)")
	flags.IntVar(&serveFlags.maxConcurrency, "max-concurrency", 0, "max concurrent fragment fetches per document (0 = unlimited)")
	flags.StringVar(&serveFlags.logLevel, "log-level", getEnv("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flags.BoolVar(&serveFlags.logPretty, "log-pretty", false, "human-readable log output")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.Setup(logging.Config{
		Level:  serveFlags.logLevel,
		Pretty: serveFlags.logPretty,
	}).With().Str("component", "server").Logger()

	store, err := buildStore(logger)
	if err != nil {
		return err
	}

	engine, err := assembler.New(assembler.Config{
		BaseURL:        serveFlags.baseURL,
		Cache:          store,
		Timeout:        serveFlags.timeout,
		MaxConcurrency: serveFlags.maxConcurrency,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/assemble", assembleHandler(engine, logger))
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              serveFlags.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", serveFlags.addr).
			Str("cache", serveFlags.cacheBackend).
			Dur("fragment_timeout", serveFlags.timeout).
			Msg("Starting assembly server")
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	// Let in-flight background revalidations settle before exit.
	engine.WaitBackground()
	return nil
}

// buildStore creates the configured cache backend. --cache=off returns
// nil, which disables caching in the engine entirely.
func buildStore(logger zerolog.Logger) (cache.Store, error) {
	switch serveFlags.cacheBackend {
	case "off":
		return nil, nil
	case "memory":
		return cache.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: serveFlags.redisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis at %s: %w", serveFlags.redisAddr, err)
		}
		logger.Info().Str("addr", serveFlags.redisAddr).Msg("Connected to Redis")
		return cache.NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q (want memory, redis or off)", serveFlags.cacheBackend)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// assembleHandler accepts a raw document and responds with the
// assembled result. Per-fragment failures degrade inside the engine, so
// the only error paths here are transport-level.
func assembleHandler(engine *assembler.Engine, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes))
		if err != nil {
			http.Error(w, "read request body", http.StatusBadRequest)
			return
		}

		assembled, err := engine.Process(r.Context(), string(body))
		if err != nil {
			logger.Error().Err(err).Msg("Assembly failed")
			http.Error(w, "assembly failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(assembled)); err != nil {
			logger.Warn().Err(err).Msg("Failed to write response")
		}
	}
}
