package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"assetvault/internal/domain/storage"
	"assetvault/internal/metrics"
	"assetvault/internal/pkg/clock"
)

const DefaultBatchSize = 100

type Service struct {
	db    *gorm.DB
	blobs storage.LocalBlobStore
	clock clock.Clock
	grace time.Duration
}

func NewService(db *gorm.DB, blobs storage.LocalBlobStore, clk clock.Clock, grace time.Duration) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Service{db: db, blobs: blobs, clock: clk, grace: grace}
}

func tableFor(backend storage.Backend) (string, error) {
	switch backend {
	case storage.BackendLocal:
		return LocalPendingDeletion{}.TableName(), nil
	case storage.BackendExternal:
		return ExternalPendingDeletion{}.TableName(), nil
	default:
		return "", fmt.Errorf("%w: unknown backend %q", storage.ErrValidation, backend)
	}
}

// Enqueue records a deleted storage reference inside the caller's
// transaction. Enqueuing a reference that is already pending is a no-op.
func (s *Service) Enqueue(tx *gorm.DB, backend storage.Backend, ref, originalPath, actor string) error {
	if ref == "" {
		return nil
	}
	table, err := tableFor(backend)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	row := PendingDeletion{
		ID:           uuid.New().String(),
		StorageRef:   ref,
		OriginalPath: originalPath,
		DeletedAt:    now,
		DeleteAfter:  now.Add(s.grace),
		DeletedBy:    actor,
	}
	return tx.Table(table).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "storage_ref"}}, DoNothing: true}).
		Create(&row).Error
}

// EnqueueRef enqueues every backend reference the ref carries.
func (s *Service) EnqueueRef(tx *gorm.DB, ref storage.Ref, originalPath, actor string) error {
	if err := s.Enqueue(tx, storage.BackendLocal, ref.LocalHandle, originalPath, actor); err != nil {
		return err
	}
	return s.Enqueue(tx, storage.BackendExternal, ref.ExternalKey, originalPath, actor)
}

// ListPending returns queue rows ordered by DeleteAfter.
func (s *Service) ListPending(ctx context.Context, backend storage.Backend, limit int, onlyExpired bool) ([]PendingDeletion, error) {
	table, err := tableFor(backend)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	q := s.db.WithContext(ctx).Table(table)
	if onlyExpired {
		q = q.Where("delete_after <= ?", s.clock.Now())
	}
	var rows []PendingDeletion
	if err := q.Order("delete_after ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ProcessExpired hard-deletes up to batchSize rows whose grace period has
// passed, or any rows when forceAll is set. Local blobs are deleted here;
// external rows are only dequeued and their keys returned, because the
// external delete cannot share a transaction with the metadata store.
func (s *Service) ProcessExpired(ctx context.Context, backend storage.Backend, batchSize int, forceAll bool) (*ProcessResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	switch backend {
	case storage.BackendLocal:
		return s.processLocal(ctx, batchSize, forceAll)
	case storage.BackendExternal:
		return s.processExternal(ctx, batchSize, forceAll)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", storage.ErrValidation, backend)
	}
}

func (s *Service) due(q *gorm.DB, forceAll bool) *gorm.DB {
	if !forceAll {
		q = q.Where("delete_after <= ?", s.clock.Now())
	}
	return q
}

func (s *Service) processLocal(ctx context.Context, batchSize int, forceAll bool) (*ProcessResult, error) {
	table := LocalPendingDeletion{}.TableName()
	var rows []PendingDeletion
	err := s.due(s.db.WithContext(ctx).Table(table), forceAll).
		Order("delete_after ASC").Limit(batchSize).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{Backend: string(storage.BackendLocal)}
	for _, row := range rows {
		if err := s.blobs.Delete(ctx, row.StorageRef); err != nil {
			log.Error().Err(err).Str("storage_ref", row.StorageRef).Msg("local blob delete failed")
			result.Failed++
			metrics.RetentionProcessed.WithLabelValues("local", "failed").Inc()
			continue
		}
		if err := s.db.WithContext(ctx).Table(table).Where("id = ?", row.ID).Delete(&PendingDeletion{}).Error; err != nil {
			// the blob is gone; a retry deletes a missing blob, which is a no-op
			log.Error().Err(err).Str("storage_ref", row.StorageRef).Msg("dequeue after local delete failed")
			result.Failed++
			metrics.RetentionProcessed.WithLabelValues("local", "failed").Inc()
			continue
		}
		result.Processed++
		metrics.RetentionProcessed.WithLabelValues("local", "deleted").Inc()
	}
	return result, nil
}

func (s *Service) processExternal(ctx context.Context, batchSize int, forceAll bool) (*ProcessResult, error) {
	table := ExternalPendingDeletion{}.TableName()
	result := &ProcessResult{Backend: string(storage.BackendExternal)}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []PendingDeletion
		if err := s.due(tx.Table(table), forceAll).Order("delete_after ASC").Limit(batchSize).Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
			result.ExternalKeys = append(result.ExternalKeys, row.StorageRef)
		}
		if err := tx.Table(table).Where("id IN ?", ids).Delete(&PendingDeletion{}).Error; err != nil {
			return err
		}
		result.Processed = len(rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RetentionProcessed.WithLabelValues("external", "dequeued").Add(float64(result.Processed))
	return result, nil
}

// CancelPending removes a reference from its queue before it is
// hard-deleted and returns the removed row.
func (s *Service) CancelPending(ctx context.Context, backend storage.Backend, ref string) (*PendingDeletion, error) {
	table, err := tableFor(backend)
	if err != nil {
		return nil, err
	}
	var row PendingDeletion
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(table).Where("storage_ref = ?", ref).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPendingNotFound
			}
			return err
		}
		return tx.Table(table).Where("id = ?", row.ID).Delete(&PendingDeletion{}).Error
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// IsPending reports whether ref is queued for the backend.
func (s *Service) IsPending(ctx context.Context, backend storage.Backend, ref string) (bool, error) {
	table, err := tableFor(backend)
	if err != nil {
		return false, err
	}
	var n int64
	if err := s.db.WithContext(ctx).Table(table).Where("storage_ref = ?", ref).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
