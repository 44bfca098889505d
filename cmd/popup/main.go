package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"

	"github.com/tibco87/clipsmart/internal/buildinfo"
	"github.com/tibco87/clipsmart/internal/logging"
	"github.com/tibco87/clipsmart/internal/popup/app"
	"github.com/tibco87/clipsmart/internal/popup/cli"
	"github.com/tibco87/clipsmart/internal/popup/config"
	"github.com/tibco87/clipsmart/internal/popup/entitlement"
	"github.com/tibco87/clipsmart/internal/popup/extpay"
	"github.com/tibco87/clipsmart/internal/popup/items"
	"github.com/tibco87/clipsmart/internal/popup/quota"
	"github.com/tibco87/clipsmart/internal/popup/storage"
)

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	db, err := storage.OpenLocal(ctx, cfg.LocalDSN)
	if err != nil {
		log.Fatalf("failed to open local store: %v", err)
	}
	defer func() { _ = db.Close() }()

	var synced storage.Tier = storage.UnavailableTier{}
	if cfg.SyncBucket != "" {
		s3Tier, err := storage.NewS3TierFromOptions(ctx, storage.S3Options{
			Region:       cfg.SyncRegion,
			Bucket:       cfg.SyncBucket,
			AccessKey:    cfg.SyncAccessKey,
			SecretKey:    cfg.SyncSecretKey,
			BaseEndpoint: cfg.SyncEndpoint,
			Prefix:       cfg.SyncPrefix,
		})
		if err != nil {
			log.Fatalf("failed to set up sync tier: %v", err)
		}
		synced = s3Tier
	}

	store := storage.NewStore(synced, storage.NewSQLiteTier(db))
	payments := extpay.NewClient(cfg.APIBaseURL, cfg.ExtensionID)
	resolver := entitlement.NewResolver(store, payments, logger, entitlement.Options{
		Development:  cfg.Development,
		PollInterval: cfg.PollInterval,
		PollAttempts: cfg.PollAttempts,
	})
	tracker := quota.NewTracker(store, cfg.FreeTranslationLimit, nil)
	repo := items.NewRepository(store, logger, cfg.FreeItemLimit, nil)

	a := app.NewApp(app.Deps{
		Config:   cfg,
		Log:      logger,
		Store:    store,
		Resolver: resolver,
		Quota:    tracker,
		Repo:     repo,
		Payments: payments,
		Opener:   cli.StdoutOpener{},
	})

	if err := a.Init(ctx); err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}

	go a.StartEntitlementWatcher(ctx, cfg.RecheckInterval)

	cli.Run(ctx, a, os.Stdin, os.Stdout)
}
