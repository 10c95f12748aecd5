package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"assetvault/internal/pkg/clock"
)

const settingsRowID = 1

// Settings is the single-row storage configuration. It is read fresh on every
// storage operation; changing it only affects uploads started afterwards.
type Settings struct {
	ID            int       `gorm:"column:id;primaryKey;autoIncrement:false" json:"-"`
	Backend       Backend   `gorm:"column:backend;type:varchar(16);not null" json:"backend"`
	PublicBaseURL string    `gorm:"column:public_base_url" json:"public_base_url"`
	KeyPrefix     string    `gorm:"column:key_prefix" json:"key_prefix"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
	UpdatedBy     string    `gorm:"column:updated_by" json:"updated_by,omitempty"`
}

func (Settings) TableName() string { return "storage_settings" }

// ExternalConfig is the subset of settings the external backend needs.
type ExternalConfig struct {
	PublicBaseURL string `json:"public_base_url"`
	KeyPrefix     string `json:"key_prefix"`
}

func (c ExternalConfig) Validate() error {
	if strings.TrimSpace(c.PublicBaseURL) == "" {
		return ErrExternalNotConfigured
	}
	return nil
}

func (s *Settings) External() ExternalConfig {
	return ExternalConfig{PublicBaseURL: s.PublicBaseURL, KeyPrefix: s.KeyPrefix}
}

func (s *Settings) Validate() error {
	if !s.Backend.Valid() {
		return fmt.Errorf("%w: unknown backend %q", ErrValidation, s.Backend)
	}
	if s.Backend == BackendExternal {
		return s.External().Validate()
	}
	return nil
}

// SettingsUpdate carries the fields an administrative caller may change.
// Nil fields keep their current value.
type SettingsUpdate struct {
	Backend       *Backend `json:"backend"`
	PublicBaseURL *string  `json:"public_base_url"`
	KeyPrefix     *string  `json:"key_prefix"`
}

type SettingsRepository struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewSettingsRepository(db *gorm.DB, clk clock.Clock) *SettingsRepository {
	if clk == nil {
		clk = clock.Real{}
	}
	return &SettingsRepository{db: db, clock: clk}
}

// Get returns the current settings, defaulting to the local backend when the
// row has never been written.
func (r *SettingsRepository) Get(ctx context.Context) (*Settings, error) {
	return LoadSettings(r.db.WithContext(ctx))
}

// Set applies the update and validates the result before persisting.
func (r *SettingsRepository) Set(ctx context.Context, update SettingsUpdate, actor string) (*Settings, error) {
	var out *Settings
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := LoadSettings(tx)
		if err != nil {
			return err
		}
		if update.Backend != nil {
			current.Backend = *update.Backend
		}
		if update.PublicBaseURL != nil {
			current.PublicBaseURL = strings.TrimSpace(*update.PublicBaseURL)
		}
		if update.KeyPrefix != nil {
			current.KeyPrefix = strings.Trim(strings.TrimSpace(*update.KeyPrefix), "/")
		}
		if err := current.Validate(); err != nil {
			return err
		}
		current.ID = settingsRowID
		current.UpdatedAt = r.clock.Now()
		current.UpdatedBy = actor
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(current).Error; err != nil {
			return err
		}
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadSettings reads the settings row through the given handle, which may be
// a transaction.
func LoadSettings(tx *gorm.DB) (*Settings, error) {
	var s Settings
	err := tx.Where("id = ?", settingsRowID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Settings{ID: settingsRowID, Backend: BackendLocal}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
