package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/njathi/homework-buddy-ai/internal/assistant"
	"github.com/njathi/homework-buddy-ai/internal/config"
	"github.com/njathi/homework-buddy-ai/internal/database"
	"github.com/njathi/homework-buddy-ai/internal/mpesa"
	"github.com/njathi/homework-buddy-ai/internal/repository"
	"github.com/njathi/homework-buddy-ai/internal/server"
	"github.com/njathi/homework-buddy-ai/internal/service"
	"github.com/njathi/homework-buddy-ai/internal/storage"
	"github.com/njathi/homework-buddy-ai/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	accountRepo := repository.NewAccountRepository(db)
	intentRepo := repository.NewIntentRepository(db)

	var attachments service.AttachmentStore
	if cfg.AttachmentUploadsEnabled() {
		uploader, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		attachments = uploader
	} else {
		logr.Info("attachment uploads disabled; s3 not configured")
	}

	authService := service.NewAuthService(accountRepo, logr)
	ledgerService := service.NewLedgerService(accountRepo, logr)
	trackerService := service.NewTrackerService(intentRepo, logr)
	paymentService := service.NewPaymentService(trackerService, ledgerService, mpesa.NewClient(cfg, logr), logr)
	askService := service.NewAskService(ledgerService, assistant.NewClient(cfg, logr), attachments, logr)

	go sweepStaleIntents(ctx, trackerService, cfg, logr)

	srv := server.NewServer(cfg.ListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr,
		authService, ledgerService, askService, paymentService, trackerService)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("server stopped", "err", err)
	}
}

// sweepStaleIntents periodically expires intents the gateway never answered
// for. It runs off the request path and re-running it is a no-op for intents
// already expired.
func sweepStaleIntents(ctx context.Context, tracker *service.TrackerService, cfg config.Config, logr *slog.Logger) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := tracker.ExpireStale(ctx, now, cfg.IntentTTL); err != nil {
				logr.Error("expire stale intents", "err", err)
			}
		}
	}
}
