// Command server runs the medication tracker API with its background
// notification jobs.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/medtrack/go-medtrack-backend/internal/config"
	httpapi "github.com/medtrack/go-medtrack-backend/internal/http"
	"github.com/medtrack/go-medtrack-backend/internal/observability"
	"github.com/medtrack/go-medtrack-backend/internal/repo"
	"github.com/medtrack/go-medtrack-backend/internal/scheduler"
	"github.com/medtrack/go-medtrack-backend/internal/services"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Fatal().Err(err).Msg("gorm tracing plugin failed")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	notifSvc := services.NewNotificationService(db)
	notifSvc.DedupWindow = cfg.Rules.DedupWindow
	notifSvc.DefaultBuySoonDays = cfg.Rules.BuySoonDays
	notifSvc.DefaultDoseDueMinutes = cfg.Rules.DoseDueMinutes
	notifSvc.DefaultMissedDoseHours = cfg.Rules.MissedDoseHours

	jobs := scheduler.New(notifSvc, scheduler.Config{
		BuySoonInterval:    cfg.Jobs.BuySoonInterval,
		DoseDueInterval:    cfg.Jobs.DoseDueInterval,
		MissedDoseInterval: cfg.Jobs.MissedDoseInterval,
		CleanupInterval:    cfg.Jobs.CleanupInterval,
		BuySoonDays:        cfg.Rules.BuySoonDays,
		DoseDueMinutes:     cfg.Rules.DoseDueMinutes,
		MissedDoseHours:    cfg.Rules.MissedDoseHours,
		RetentionDays:      cfg.Jobs.RetentionDays,
		TickTimeout:        time.Minute,
	}, log.Logger)
	if cfg.Jobs.Enabled {
		jobs.StartAll()
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, jobs, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := jobs.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("scheduler shutdown incomplete")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown incomplete")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// setupLogging configures the global zerolog logger from config.
func setupLogging(cfg config.Config) {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
