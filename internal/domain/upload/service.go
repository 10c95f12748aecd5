package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"assetvault/internal/domain/asset"
	"assetvault/internal/domain/changelog"
	"assetvault/internal/domain/storage"
	"assetvault/internal/metrics"
	"assetvault/internal/pkg/clock"
	"assetvault/internal/pkg/pathutil"
)

type Service struct {
	db       *gorm.DB
	intents  Repository
	resolver *storage.Resolver
	assets   *asset.Service
	changes  *changelog.Service
	clock    clock.Clock
	ttl      time.Duration
}

func NewService(db *gorm.DB, resolver *storage.Resolver, assets *asset.Service, changes *changelog.Service, clk clock.Clock, ttl time.Duration) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if ttl <= 0 {
		ttl = DefaultIntentTTL
	}
	return &Service{db: db, intents: NewRepository(db), resolver: resolver, assets: assets, changes: changes, clock: clk, ttl: ttl}
}

// StartUpload reserves an intent against the backend configured right now
// and returns where the client should send the bytes. Nothing is persisted
// if the backend cannot issue an upload URL.
func (s *Service) StartUpload(ctx context.Context, in StartInput) (*StartResult, error) {
	if err := asset.ValidateBasename(in.Basename); err != nil {
		return nil, err
	}
	folderPath := pathutil.Normalize(in.FolderPath)
	filename := strings.TrimSpace(in.Filename)

	settings, err := s.resolver.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	intent := &Intent{
		ID:         uuid.New().String(),
		FolderPath: folderPath,
		Basename:   in.Basename,
		Filename:   filename,
		Label:      in.Label,
		Backend:    settings.Backend,
		Status:     StatusCreated,
		ExpiresAt:  now.Add(s.ttl),
		CreatedAt:  now,
		CreatedBy:  in.Actor,
	}

	var uploadURL string
	switch settings.Backend {
	case storage.BackendExternal:
		external := s.resolver.External()
		if external == nil {
			return nil, storage.ErrExternalUnavailable
		}
		name := filename
		if name == "" {
			name = in.Basename
		}
		intent.ObjectKey = storage.ObjectKey(settings.KeyPrefix, intent.ID, name)
		uploadURL, err = external.IssueUploadURL(ctx, intent.ObjectKey)
	default:
		uploadURL, err = s.resolver.Blobs().IssueUploadURL(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("issue upload url: %w", err)
	}

	if err := s.intents.Create(ctx, intent); err != nil {
		return nil, err
	}
	return &StartResult{
		IntentID:  intent.ID,
		Backend:   intent.Backend,
		UploadURL: uploadURL,
		ObjectKey: intent.ObjectKey,
		ExpiresAt: intent.ExpiresAt,
	}, nil
}

// FinishUpload commits the uploaded bytes as the asset's new published
// version and consumes the intent. Expired intents are marked and rejected.
func (s *Service) FinishUpload(ctx context.Context, in FinishInput) (*FinishResult, error) {
	res, backend, err := s.finish(ctx, in)
	metrics.UploadsFinished.WithLabelValues(string(backend), outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	s.changes.Notify(ctx)
	return res, nil
}

func (s *Service) finish(ctx context.Context, in FinishInput) (*FinishResult, storage.Backend, error) {
	intent, err := s.Get(ctx, in.IntentID)
	if err != nil {
		return nil, "", err
	}
	if err := s.checkOpen(ctx, intent); err != nil {
		return nil, intent.Backend, err
	}

	commit := asset.CommitInput{
		FolderPath: intent.FolderPath,
		Basename:   intent.Basename,
		Label:      intent.Label,
		Actor:      in.Actor,
	}
	switch intent.Backend {
	case storage.BackendExternal:
		settings, err := s.resolver.Settings(ctx)
		if err != nil {
			return nil, intent.Backend, err
		}
		// stamp the URL now so later base URL changes leave it stable
		var publicURL string
		if settings.External().Validate() == nil {
			publicURL = storage.PublicURL(settings.PublicBaseURL, intent.ObjectKey)
		}
		commit.Ref = storage.ExternalRef(intent.ObjectKey, publicURL)
		commit.Size = in.Size
		commit.ContentType = in.ContentType
	default:
		handle, err := storageID(in.UploadResult)
		if err != nil {
			return nil, intent.Backend, err
		}
		meta, err := s.resolver.Blobs().Stat(ctx, handle)
		if err != nil {
			return nil, intent.Backend, fmt.Errorf("stat blob: %w", err)
		}
		if meta == nil {
			return nil, intent.Backend, ErrBlobNotFound
		}
		commit.Ref = storage.LocalRef(handle)
		commit.Size = meta.Size
		commit.ContentType = meta.ContentType
		commit.Checksum = meta.Checksum
	}

	var committed *asset.CommitResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked Intent
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", intent.ID).First(&locked).Error; err != nil {
			return err
		}
		if locked.Status != StatusCreated {
			return notOpen(locked.Status)
		}

		var err error
		committed, err = s.assets.CommitTx(tx, commit)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		return tx.Model(&Intent{}).Where("id = ?", intent.ID).Updates(map[string]any{
			"status":       StatusFinalized,
			"finalized_at": now,
			"version_id":   committed.Version.ID,
		}).Error
	})
	if err != nil {
		return nil, intent.Backend, err
	}

	log.Info().
		Str("intent_id", intent.ID).
		Str("backend", string(intent.Backend)).
		Str("asset_id", committed.Asset.ID).
		Int("version", committed.Version.Version).
		Msg("upload finalized")
	return &FinishResult{
		AssetID:   committed.Asset.ID,
		VersionID: committed.Version.ID,
		Version:   committed.Version.Version,
	}, intent.Backend, nil
}

// checkOpen rejects intents that are no longer usable, marking overdue ones
// expired on the way.
func (s *Service) checkOpen(ctx context.Context, intent *Intent) error {
	if intent.Status != StatusCreated {
		return notOpen(intent.Status)
	}
	if !s.clock.Now().Before(intent.ExpiresAt) {
		if err := s.intents.MarkExpired(ctx, intent.ID); err != nil {
			log.Warn().Err(err).Str("intent_id", intent.ID).Msg("mark intent expired failed")
		}
		return ErrIntentExpired
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Intent, error) {
	return s.intents.GetByID(ctx, id)
}

// ExpireOverdue marks abandoned intents expired so they stop showing as open.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.intents.ExpireOverdue(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("expired overdue upload intents")
	}
	return n, nil
}

func notOpen(status Status) error {
	if status == StatusFinalized {
		return ErrIntentFinalized
	}
	return fmt.Errorf("%w (status %s)", ErrIntentNotCreated, status)
}

func storageID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", ErrMissingStorageID
	}
	var res localUploadResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingStorageID, err)
	}
	if res.StorageID == "" {
		return "", ErrMissingStorageID
	}
	return res.StorageID, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "finalized"
	case errors.Is(err, ErrIntentExpired):
		return "expired"
	case errors.Is(err, ErrIntentNotCreated):
		return "rejected"
	default:
		return "error"
	}
}
