// Package app assembles the vault from configuration. The API server and the
// operator CLI share it so both run against identically wired services.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"assetvault/internal/blobstore"
	"assetvault/internal/config"
	"assetvault/internal/database"
	"assetvault/internal/domain/asset"
	"assetvault/internal/domain/changelog"
	"assetvault/internal/domain/folder"
	"assetvault/internal/domain/migration"
	"assetvault/internal/domain/retention"
	"assetvault/internal/domain/serving"
	"assetvault/internal/domain/storage"
	"assetvault/internal/domain/upload"
	"assetvault/internal/objectstore"
	"assetvault/internal/pkg/clock"
	jwtsvc "assetvault/internal/pkg/jwt"
)

// ObjectRemover deletes external objects out of band, after their queue rows
// are gone.
type ObjectRemover interface {
	Remove(ctx context.Context, key string) error
}

// ExternalBackend is everything the app needs from the object service.
type ExternalBackend interface {
	storage.ExternalObjectService
	ObjectRemover
}

type App struct {
	Config *config.Config
	DB     *gorm.DB

	Blobs    storage.LocalBlobStore
	External ExternalBackend
	// BlobHandler is nil when the local store is not served by this process.
	BlobHandler *blobstore.Handler

	Settings  *storage.SettingsRepository
	Resolver  *storage.Resolver
	Changes   *changelog.Service
	Retention *retention.Service
	Assets    *asset.Service
	Folders   *folder.Service
	Uploads   *upload.Service
	Migration *migration.Service
	Serving   *serving.Service

	clock   clock.Clock
	closers []func() error
}

// New connects to the database, migrates it and builds every service.
func New(cfg *config.Config) (*App, error) {
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	clk := clock.Real{}
	blobs, err := blobstore.New(blobstore.Config{
		Dir:       cfg.BlobDir,
		BaseURL:   cfg.PublicBaseURL + "/blobs",
		UploadTTL: cfg.UploadIntentTTL,
		ReadTTL:   cfg.BlobURLTTL,
	}, jwtsvc.New(cfg.BlobSecret, clk))
	if err != nil {
		return nil, err
	}

	var external ExternalBackend
	if cfg.External.Enabled() {
		objects, err := objectstore.New(objectstore.Config{
			Endpoint:  cfg.External.Endpoint,
			AccessKey: cfg.External.AccessKey,
			SecretKey: cfg.External.SecretKey,
			Bucket:    cfg.External.Bucket,
			Region:    cfg.External.Region,
			UseSSL:    cfg.External.UseSSL,
			UploadTTL: cfg.UploadIntentTTL,
		})
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := objects.EnsureBucket(ctx); err != nil {
			log.Warn().Err(err).Msg("object store bucket check failed")
		}
		cancel()
		external = objects
	}

	var notifier changelog.Notifier
	var closers []func() error
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("redis unreachable, changelog signals stay in-process")
			_ = rdb.Close()
		} else {
			rn := changelog.NewRedisNotifier(rdb)
			notifier = rn
			closers = append(closers, rn.Close, rdb.Close)
		}
	}

	a := Build(cfg, db, clk, blobs, external, notifier)
	a.BlobHandler = blobstore.NewHandler(blobs, cfg.MaxUploadBytes)
	a.closers = append(a.closers, closers...)
	return a, nil
}

// Build wires the services over already constructed backends. A nil notifier
// keeps changelog signals in-process; a nil external disables that backend.
func Build(cfg *config.Config, db *gorm.DB, clk clock.Clock, blobs storage.LocalBlobStore, external ExternalBackend, notifier changelog.Notifier) *App {
	if notifier == nil {
		notifier = changelog.NewLocalNotifier()
	}
	var objects storage.ExternalObjectService
	if external != nil {
		objects = external
	}

	a := &App{Config: cfg, DB: db, Blobs: blobs, External: external, clock: clk}
	a.Settings = storage.NewSettingsRepository(db, clk)
	a.Resolver = storage.NewResolver(db, blobs, objects)
	a.Changes = changelog.NewService(db, clk, notifier)
	a.Retention = retention.NewService(db, blobs, clk, cfg.RetentionGrace)
	a.Assets = asset.NewService(db, a.Resolver, a.Retention, a.Changes, clk)
	a.Folders = folder.NewService(db, a.Assets, a.Resolver, a.Changes, clk)
	a.Uploads = upload.NewService(db, a.Resolver, a.Assets, a.Changes, clk, cfg.UploadIntentTTL)
	a.Migration = migration.NewService(db, a.Resolver, a.Retention, clk)
	a.Serving = serving.NewService(a.Assets, a.Resolver, cfg.InlineServeLimit, &http.Client{Timeout: 30 * time.Second})
	return a
}

func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
