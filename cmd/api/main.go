package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"spaces/api/internal/app"
	"spaces/api/internal/config"
	"spaces/api/internal/email"
	"spaces/api/internal/idempotency"
	"spaces/api/internal/search"
	"spaces/api/internal/snapshot"
	"spaces/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	var dataStore app.Store
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		dataStore = store.NewPostgresStore(db)
	} else {
		log.Printf("DATABASE_URL not set, using the in-memory store")
		dataStore = store.NewMemoryStore()
	}

	var index search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		index = meiliClient
	}
	searchService := search.NewService(index, dataStore)

	var idem idempotency.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for idempotency keys")
		redisStore, err := idempotency.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		idem = redisStore
	} else {
		idem = idempotency.NewMemoryStore()
	}

	deps := app.Deps{Search: searchService, Idempotency: idem}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		deps.Notifier = mailer
	} else {
		log.Printf("SMTP not configured, sharing emails will only be logged")
	}

	snapshots := newSnapshotService(ctx, cfg, dataStore)
	snapshots.Start()
	defer snapshots.Close()
	deps.Snapshots = snapshots

	service := app.New(cfg, dataStore, deps)
	if err := service.ReindexSearch(ctx); err != nil {
		log.Printf("WARNING: search reindex failed: %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Spaces API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	searchService.Wait()
}

func newSnapshotService(ctx context.Context, cfg config.Config, attacher snapshot.Attacher) *snapshot.Service {
	var blobs snapshot.BlobStore = snapshot.DataURLStore{}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioStore, err := snapshot.NewMinioBlobStore(ctx, snapshot.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Printf("WARNING: minio unavailable, storing snapshots inline: %v", err)
		} else {
			blobs = minioStore
		}
	}

	var capturer snapshot.Capturer
	if cfg.SnapshotEnabled {
		chrome, err := snapshot.NewChromeCapturer()
		if err != nil {
			log.Printf("WARNING: snapshot capture disabled: %v", err)
		} else {
			capturer = chrome
		}
	}
	return snapshot.NewService(capturer, blobs, attacher, cfg.SnapshotWorkers)
}
