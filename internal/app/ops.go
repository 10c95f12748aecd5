package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"assetvault/internal/domain/migration"
	"assetvault/internal/domain/storage"
	"assetvault/internal/domain/upload"
)

// SweepReport totals one retention run across batches.
type SweepReport struct {
	Backend       storage.Backend `json:"backend"`
	Processed     int             `json:"processed"`
	Failed        int             `json:"failed"`
	ObjectsKept   []string        `json:"objects_kept,omitempty"`
	ObjectsPurged int             `json:"objects_purged"`
}

// SweepRetention drains a backend's expired pending deletions batch by batch.
// Dequeued external keys are removed from the object service afterwards; keys
// that fail to delete are reported back, since their rows are already gone.
func (a *App) SweepRetention(ctx context.Context, backend storage.Backend, batchSize int, forceAll bool) (*SweepReport, error) {
	report := &SweepReport{Backend: backend}
	for {
		res, err := a.Retention.ProcessExpired(ctx, backend, batchSize, forceAll)
		if err != nil {
			return report, err
		}
		report.Processed += res.Processed
		report.Failed += res.Failed
		for _, key := range res.ExternalKeys {
			if a.External == nil {
				report.ObjectsKept = append(report.ObjectsKept, key)
				continue
			}
			if err := a.External.Remove(ctx, key); err != nil {
				log.Error().Err(err).Str("key", key).Msg("external object delete failed")
				report.ObjectsKept = append(report.ObjectsKept, key)
				continue
			}
			report.ObjectsPurged++
		}
		// failed rows stay queued and would come back in the next batch
		if res.Processed == 0 || res.Failed > 0 {
			return report, nil
		}
	}
}

// ExpireIntents marks overdue upload intents expired.
func (a *App) ExpireIntents(ctx context.Context) (int64, error) {
	return upload.NewRepository(a.DB).ExpireOverdue(ctx, a.clock.Now())
}

// MigrateReport totals a bulk migration run.
type MigrateReport struct {
	Migrated int                      `json:"migrated"`
	Skipped  int                      `json:"skipped"`
	Errors   []migration.ItemError    `json:"errors"`
	Cleanup  *migration.CleanupReport `json:"cleanup,omitempty"`
}

// MigrateAll copies every local-only version to the external backend using
// the current storage settings. With cleanup set, migrated versions drop
// their local reference in the same run.
func (a *App) MigrateAll(ctx context.Context, batchSize int, cleanup bool, actor string) (*MigrateReport, error) {
	settings, err := a.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	cfg := settings.External()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	report := &MigrateReport{Errors: []migration.ItemError{}}
	var migrated []string
	cursor := ""
	for {
		page, err := a.Migration.ListToMigrate(ctx, cursor, batchSize)
		if err != nil {
			return report, err
		}
		if len(page.Versions) == 0 {
			break
		}
		for _, v := range page.Versions {
			_, err := a.Migration.MigrateToExternal(ctx, v.ID, cfg)
			switch {
			case err == nil:
				report.Migrated++
				migrated = append(migrated, v.ID)
			case errors.Is(err, migration.ErrAlreadyMigrated):
				report.Skipped++
			default:
				report.Errors = append(report.Errors, migration.ItemError{VersionID: v.ID, Error: err.Error()})
			}
		}
		cursor = page.NextCursor
	}

	if cleanup && len(migrated) > 0 {
		report.Cleanup = a.Migration.CleanupMigratedVersions(ctx, migrated, actor)
	}
	log.Info().
		Int("migrated", report.Migrated).
		Int("skipped", report.Skipped).
		Int("errors", len(report.Errors)).
		Msg("bulk migration finished")
	return report, nil
}

// BackfillPublicURLs stamps a public URL on every migrated version missing
// one, derived from the configured base.
func (a *App) BackfillPublicURLs(ctx context.Context, batchSize int) (int, error) {
	stamped := 0
	cursor := ""
	for {
		page, err := a.Migration.ListNeedingPublicURLBackfill(ctx, cursor, batchSize)
		if err != nil {
			return stamped, err
		}
		if len(page.Versions) == 0 {
			return stamped, nil
		}
		for _, v := range page.Versions {
			if _, err := a.Migration.SetPublicURL(ctx, v.ID, ""); err != nil {
				return stamped, err
			}
			stamped++
		}
		cursor = page.NextCursor
	}
}
