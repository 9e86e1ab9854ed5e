// Command netsummaryd serves reconciled network summaries over HTTP.
// It loads the configuration, opens the snapshot database, wires the upstream
// client, cache and summary service, and handles graceful shutdown when terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"netsummary/internal/api"
	"netsummary/internal/cache"
	"netsummary/internal/config"
	"netsummary/internal/database"
	"netsummary/internal/fetch"
	"netsummary/internal/summary"
	"netsummary/internal/upstream"
)

// Global variables for command line flags
var (
	logLevelFlag   string
	initConfigFlag bool
)

// parseFlags parses command line flags and returns the config path
func parseFlags() string {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	flag.BoolVar(&initConfigFlag, "init-config", false, "Write a default configuration to -config and exit")
	flag.Parse()
	return *configPath
}

// setupLogging configures the global logger
func setupLogging(level, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// setupService builds the summary service and the cache behind it
func setupService(cfg *config.Config, db *database.DB) (*summary.Service, *cache.Cache) {
	client := upstream.NewHTTPClient(upstream.HTTPConfig{
		BaseURL:           cfg.Upstream.BaseURL,
		APIKey:            cfg.Upstream.APIKey,
		RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
		Burst:             cfg.Upstream.Burst,
		Timeout:           cfg.GetUpstreamTimeout(),
	})

	ttls := cfg.GetCacheTTLs()
	c := cache.New(ttls, cache.WithMaxEntries(cfg.Cache.MaxEntries))

	baseDelay, maxDelay := cfg.GetRetryDelays()
	retrier := fetch.NewRetrier(cfg.Retry.MaxAttempts, baseDelay, maxDelay)

	svc := summary.New(client, c, retrier,
		summary.WithStore(db),
		summary.WithConcurrency(cfg.Batch.Concurrency),
		summary.WithNeighborTTL(ttls[cache.NeighborDiscovery]),
	)
	return svc, c
}

// setupRouter registers the API, status and metrics routes and wraps them in the
// CORS, recovery and compression middleware
func setupRouter(cfg *config.Config, db *database.DB, svc *summary.Service, c *cache.Cache) http.Handler {
	router := mux.NewRouter()

	summaryHandler := api.NewSummaryHandler(svc)
	statusHandler := api.NewStatusHandler(db, svc, c, cfg)

	summaryHandler.RegisterRoutes(router)
	statusHandler.RegisterRoutes(router)

	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, promhttp.Handler()).Methods("GET")
	}

	corsMiddleware := handlers.CORS(
		handlers.AllowedOrigins(cfg.Server.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	recovery := handlers.RecoveryHandler(handlers.PrintRecoveryStack(cfg.Logging.Level == "debug"))

	return corsMiddleware(recovery(handlers.CompressHandler(router)))
}

// startMaintenance periodically prunes and optimizes the database until stop is closed
func startMaintenance(cfg *config.Config, db *database.DB, stop <-chan struct{}) {
	ticker := time.NewTicker(cfg.GetOptimizeFrequency())
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deleted, err := db.CleanOldData(cfg.Database.SnapshotRetentionDays, cfg.Database.RunRetentionDays)
				if err != nil {
					log.Error().Err(err).Msg("Failed to clean old data")
				} else if deleted > 0 {
					log.Info().Int("deleted", deleted).Msg("Removed expired rows")
				}
				if err := db.OptimizeDatabase(); err != nil {
					log.Error().Err(err).Msg("Database optimization failed")
				}
			case <-stop:
				return
			}
		}
	}()
}

func main() {
	configPath := parseFlags()

	cfg := config.GetConfig()

	if initConfigFlag {
		setupLogging(logLevelFlag, "console")
		if err := cfg.SaveConfig(configPath); err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("Failed to write default configuration")
		}
		log.Info().Str("path", configPath).Msg("Default configuration written")
		return
	}

	if err := cfg.LoadConfig(configPath); err != nil {
		setupLogging(logLevelFlag, "console")
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}

	level := cfg.Logging.Level
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	setupLogging(level, cfg.Logging.Format)

	log.Info().Msg("Starting network summary service")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.Upstream.APIKey == "" {
		log.Warn().Str("env", config.EnvAPIKey).Msg("No upstream API key configured")
	}

	log.Info().Str("path", cfg.Database.Path).Msg("Initializing database")
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	svc, c := setupService(cfg, db)

	stop := make(chan struct{})
	c.StartSweeper(cfg.GetSweepInterval(), stop)
	startMaintenance(cfg, db, stop)

	if cfg.Refresh.Enabled {
		svc.StartScheduler(cfg.Refresh.Networks, cfg.GetRefreshFrequency())
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      setupRouter(cfg, db, svc, c),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalChan
	log.Info().Str("signal", sig.String()).Msg("Received termination signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	log.Info().Msg("Shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	svc.Stop()
	close(stop)

	log.Info().Msg("Optimizing database before exit")
	if err := db.OptimizeDatabase(); err != nil {
		log.Error().Err(err).Msg("Database optimization failed")
	}

	log.Info().Msg("Network summary service has been shut down gracefully")
}
