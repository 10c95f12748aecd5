package changelog

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"assetvault/internal/pkg/clock"
	"assetvault/internal/pkg/pathutil"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type Service struct {
	db       *gorm.DB
	clock    clock.Clock
	notifier Notifier
}

func NewService(db *gorm.DB, clk clock.Clock, notifier Notifier) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if notifier == nil {
		notifier = NewLocalNotifier()
	}
	return &Service{db: db, clock: clk, notifier: notifier}
}

func (s *Service) Notifier() Notifier { return s.notifier }

// Append writes an entry inside the caller's transaction. Callers invoke
// Notify once the transaction has committed.
func (s *Service) Append(tx *gorm.DB, e *Entry) error {
	if e.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		e.ID = id.String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = s.clock.Now().UnixMilli()
	}
	return tx.Create(e).Error
}

// Notify wakes live subscribers after new entries became visible.
func (s *Service) Notify(ctx context.Context) {
	if err := s.notifier.Notify(ctx); err != nil {
		log.Warn().Err(err).Msg("changelog notify failed")
	}
}

// ListSince returns entries strictly after cursor in (CreatedAt, ID) order.
func (s *Service) ListSince(ctx context.Context, cursor Cursor, limit int) (*Page, error) {
	return s.list(s.db.WithContext(ctx), cursor, limit)
}

// ListForFolder is ListSince restricted to one folder path.
func (s *Service) ListForFolder(ctx context.Context, folderPath string, cursor Cursor, limit int) (*Page, error) {
	return s.list(s.db.WithContext(ctx).Where("folder_path = ?", pathutil.Normalize(folderPath)), cursor, limit)
}

func (s *Service) list(q *gorm.DB, cursor Cursor, limit int) (*Page, error) {
	limit = clampLimit(limit)
	var entries []Entry
	err := q.
		Where("(created_at > ? OR (created_at = ? AND id > ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	next := cursor
	if n := len(entries); n > 0 {
		next = Cursor{CreatedAt: entries[n-1].CreatedAt, ID: entries[n-1].ID}
	}
	if entries == nil {
		entries = []Entry{}
	}
	return &Page{Entries: entries, NextCursor: next}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
