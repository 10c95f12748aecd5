// Package migration copies version content from the local blob store to the
// external object service without ever removing the local copy itself.
// Cleanup hands the redundant local handle to the retention queue.
package migration

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"assetvault/internal/domain/asset"
	"assetvault/internal/domain/retention"
	"assetvault/internal/domain/storage"
	"assetvault/internal/metrics"
	"assetvault/internal/pkg/clock"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type Service struct {
	db        *gorm.DB
	resolver  *storage.Resolver
	retention *retention.Service
	clock     clock.Clock
}

func NewService(db *gorm.DB, resolver *storage.Resolver, retention *retention.Service, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{db: db, resolver: resolver, retention: retention, clock: clk}
}

// Page is a batch of versions keyed by id order. NextCursor is the last id
// returned, or the input cursor when the page is empty.
type Page struct {
	Versions   []asset.Version `json:"versions"`
	NextCursor string          `json:"next_cursor"`
}

type ItemError struct {
	VersionID string `json:"version_id"`
	Error     string `json:"error"`
}

type CleanupReport struct {
	Cleaned int         `json:"cleaned"`
	Skipped int         `json:"skipped"`
	Errors  []ItemError `json:"errors"`
}

type Stats struct {
	LocalOnly    int64 `json:"local_only"`
	ExternalOnly int64 `json:"external_only"`
	Both         int64 `json:"both"`
	Neither      int64 `json:"neither"`
}

// ListToMigrate pages through versions that have a local reference but no
// external key yet.
func (s *Service) ListToMigrate(ctx context.Context, cursor string, limit int) (*Page, error) {
	q := s.db.WithContext(ctx).Where("local_handle <> '' AND (external_key = '' OR external_key IS NULL)")
	return page(q, cursor, limit)
}

// ListNeedingPublicURLBackfill pages through migrated versions that have no
// stamped public URL.
func (s *Service) ListNeedingPublicURLBackfill(ctx context.Context, cursor string, limit int) (*Page, error) {
	q := s.db.WithContext(ctx).Where("external_key <> '' AND (external_url = '' OR external_url IS NULL)")
	return page(q, cursor, limit)
}

func page(q *gorm.DB, cursor string, limit int) (*Page, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if cursor != "" {
		q = q.Where("id > ?", cursor)
	}
	var versions []asset.Version
	if err := q.Order("id ASC").Limit(limit).Find(&versions).Error; err != nil {
		return nil, err
	}
	next := cursor
	if len(versions) > 0 {
		next = versions[len(versions)-1].ID
	}
	return &Page{Versions: versions, NextCursor: next}, nil
}

// MigrateToExternal copies a version's local bytes to the external backend
// under "{prefix/}{versionID}/{basename}" and stamps the key and public URL.
// The local reference is kept. Retrying after a failure rewrites the same key.
func (s *Service) MigrateToExternal(ctx context.Context, versionID string, cfg storage.ExternalConfig) (*asset.Version, error) {
	v, err := s.migrate(ctx, versionID, cfg)
	result := "migrated"
	switch {
	case errors.Is(err, ErrAlreadyMigrated):
		result = "skipped"
	case err != nil:
		result = "error"
	}
	metrics.Migrations.WithLabelValues(result).Inc()
	return v, err
}

func (s *Service) migrate(ctx context.Context, versionID string, cfg storage.ExternalConfig) (*asset.Version, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	external := s.resolver.External()
	if external == nil {
		return nil, storage.ErrExternalUnavailable
	}

	v, a, err := s.load(s.db.WithContext(ctx), versionID, false)
	if err != nil {
		return nil, err
	}
	if v.ExternalKey != "" {
		return nil, ErrAlreadyMigrated
	}
	if v.LocalHandle == "" {
		return nil, ErrNoLocalReference
	}

	data, err := s.resolver.Blobs().Get(ctx, v.LocalHandle)
	if err != nil {
		return nil, fmt.Errorf("read local blob: %w", err)
	}
	if data == nil {
		return nil, ErrLocalBlobMissing
	}
	contentType := v.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	key := storage.ObjectKey(cfg.KeyPrefix, v.ID, a.Basename)
	if key, err = external.Store(ctx, data, key, contentType); err != nil {
		return nil, fmt.Errorf("store external object: %w", err)
	}

	now := s.clock.Now()
	publicURL := storage.PublicURL(cfg.PublicBaseURL, key)
	res := s.db.WithContext(ctx).Model(&asset.Version{}).
		Where("id = ? AND (external_key = '' OR external_key IS NULL)", v.ID).
		Updates(map[string]any{"external_key": key, "external_url": publicURL, "migrated_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyMigrated
	}
	v.ExternalKey, v.ExternalURL, v.MigratedAt = key, publicURL, &now

	log.Info().Str("version_id", v.ID).Str("key", key).Int("bytes", len(data)).Msg("version migrated")
	return v, nil
}

// CleanupMigratedVersion drops the local reference of a migrated version.
// The handle is queued for retention unless another version still uses it.
func (s *Service) CleanupMigratedVersion(ctx context.Context, versionID, actor string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, a, err := s.load(tx, versionID, true)
		if err != nil {
			return err
		}
		if v.ExternalKey == "" {
			return ErrNotMigrated
		}
		if v.LocalHandle == "" {
			return ErrNoLocalReference
		}

		var shared int64
		if err := tx.Model(&asset.Version{}).
			Where("local_handle = ? AND id <> ?", v.LocalHandle, v.ID).
			Count(&shared).Error; err != nil {
			return err
		}
		if shared == 0 {
			if err := s.retention.Enqueue(tx, storage.BackendLocal, v.LocalHandle, a.Path(), actor); err != nil {
				return err
			}
		}
		return tx.Model(&asset.Version{}).Where("id = ?", v.ID).Update("local_handle", "").Error
	})
}

// CleanupMigratedVersions runs CleanupMigratedVersion per id. Versions that
// are not migrated or already cleaned count as skipped.
func (s *Service) CleanupMigratedVersions(ctx context.Context, versionIDs []string, actor string) *CleanupReport {
	report := &CleanupReport{Errors: []ItemError{}}
	for _, id := range versionIDs {
		err := s.CleanupMigratedVersion(ctx, id, actor)
		switch {
		case err == nil:
			report.Cleaned++
		case errors.Is(err, ErrNotMigrated), errors.Is(err, ErrNoLocalReference):
			report.Skipped++
		default:
			log.Warn().Err(err).Str("version_id", id).Msg("cleanup failed")
			report.Errors = append(report.Errors, ItemError{VersionID: id, Error: err.Error()})
		}
	}
	return report
}

// SetPublicURL stamps a migrated version's public URL. An empty url derives
// it from the currently configured base.
func (s *Service) SetPublicURL(ctx context.Context, versionID, url string) (*asset.Version, error) {
	v, _, err := s.load(s.db.WithContext(ctx), versionID, false)
	if err != nil {
		return nil, err
	}
	if v.ExternalKey == "" {
		return nil, ErrNoExternalKey
	}
	if url == "" {
		settings, err := s.resolver.Settings(ctx)
		if err != nil {
			return nil, err
		}
		cfg := settings.External()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		url = storage.PublicURL(cfg.PublicBaseURL, v.ExternalKey)
	}
	if err := s.db.WithContext(ctx).Model(&asset.Version{}).Where("id = ?", v.ID).Update("external_url", url).Error; err != nil {
		return nil, err
	}
	v.ExternalURL = url
	return v, nil
}

// GetStats counts versions by where their bytes live.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	type row struct {
		HasLocal    bool
		HasExternal bool
		N           int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&asset.Version{}).
		Select("COALESCE(local_handle, '') <> '' AS has_local, COALESCE(external_key, '') <> '' AS has_external, COUNT(*) AS n").
		Group("has_local, has_external").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	stats := &Stats{}
	for _, r := range rows {
		switch {
		case r.HasLocal && r.HasExternal:
			stats.Both += r.N
		case r.HasLocal:
			stats.LocalOnly += r.N
		case r.HasExternal:
			stats.ExternalOnly += r.N
		default:
			stats.Neither += r.N
		}
	}
	return stats, nil
}

// load reads a version and its asset, locking the version row when lock is set.
func (s *Service) load(db *gorm.DB, versionID string, lock bool) (*asset.Version, *asset.Asset, error) {
	q := db
	if lock {
		q = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var v asset.Version
	if err := q.Where("id = ?", versionID).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, asset.ErrVersionNotFound
		}
		return nil, nil, err
	}
	var a asset.Asset
	if err := db.Where("id = ?", v.AssetID).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, asset.ErrAssetNotFound
		}
		return nil, nil, err
	}
	return &v, &a, nil
}
