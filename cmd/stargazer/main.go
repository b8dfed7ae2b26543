package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stargazer-gateway/internal/analysis"
	"stargazer-gateway/internal/cache"
	"stargazer-gateway/internal/fetcher"
	"stargazer-gateway/internal/github"
	"stargazer-gateway/internal/handlers"
	"stargazer-gateway/internal/httpserver"
	"stargazer-gateway/internal/metrics"
	"stargazer-gateway/pkg/logging/logging"
)

type Config struct {
	Port         string
	CacheBackend string // "memory" or "redis"
	RedisAddr    string
	RedisPrefix  string
	GitHubToken  string
	GitHubAPIURL string
	CacheTTL     time.Duration // lifetime of fetched data in the shared tier
	L1MaxEntries int
	L1TTL        time.Duration
}

func LoadConfig() Config {
	return Config{
		Port:         getenv("PORT", "8080"),
		CacheBackend: getenv("CACHE_BACKEND", "memory"),
		RedisAddr:    getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPrefix:  getenv("REDIS_PREFIX", "stargazer"),
		GitHubToken:  os.Getenv("GITHUB_TOKEN"),
		GitHubAPIURL: os.Getenv("GITHUB_API_URL"),
		CacheTTL:     getenvDuration("CACHE_TTL", fetcher.DefaultCacheTTL),
		L1MaxEntries: getenvInt("L1_MAX_ENTRIES", cache.DefaultMaxEntries),
		L1TTL:        getenvDuration("L1_TTL", cache.DefaultL1TTL),
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("stargazer exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg := LoadConfig()

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("l1_max_entries", cfg.L1MaxEntries),
		zap.Duration("l1_ttl", cfg.L1TTL),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.CacheBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})

		// Fail fast if Redis is misconfigured.
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.RedisAddr),
		)
	}

	// ----- Layered caches -----
	backend := cache.NewBackend(cfg.CacheBackend, cfg.RedisPrefix, redisClient)

	repoCache := cache.NewLayered[*github.RepoDetails](cache.Config{
		Name:       "repo",
		MaxEntries: cfg.L1MaxEntries,
		L1TTL:      cfg.L1TTL,
	}, backend, logger)
	defer repoCache.Close()

	pageCache := cache.NewLayered[*github.StarredPage](cache.Config{
		Name:       "starred",
		MaxEntries: cfg.L1MaxEntries,
		L1TTL:      cfg.L1TTL,
	}, backend, logger)
	defer pageCache.Close()

	// ----- GitHub client -----
	if cfg.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN is required")
	}

	ghClient, err := github.NewClient(github.Config{
		Token:   cfg.GitHubToken,
		BaseURL: cfg.GitHubAPIURL,
	}, logger)
	if err != nil {
		return err
	}
	if closer, ok := ghClient.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Fetcher + analyzer -----
	f := fetcher.New(ghClient, repoCache, pageCache, cfg.CacheTTL, logger)
	analyzer := analysis.NewAnalyzer(f, logger)

	// ----- Handlers -----
	repoHandler := handlers.NewRepoHandler(f)
	starredHandler := handlers.NewStarredHandler(f, ghClient, analyzer)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, repoHandler, starredHandler)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting stargazer gateway",
		zap.String("addr", srv.Addr),
		zap.String("cache_backend", cfg.CacheBackend),
	)

	// Start server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
