package database

import (
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"assetvault/internal/domain/asset"
	"assetvault/internal/domain/changelog"
	"assetvault/internal/domain/folder"
	"assetvault/internal/domain/retention"
	"assetvault/internal/domain/storage"
	"assetvault/internal/domain/upload"
)

func Connect(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		log.Info().Msg("connecting to PostgreSQL")
		return gorm.Open(postgres.Open(dsn), cfg)
	}

	log.Info().Str("dsn", dsn).Msg("using SQLite for local development")

	db, err := gorm.Open(
		gormsqlite.New(gormsqlite.Config{
			DriverName: "sqlite",
			DSN:        dsn,
		}),
		cfg,
	)
	if err != nil {
		return nil, err
	}
	// one writer at a time, otherwise concurrent commits hit SQLITE_BUSY
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Models lists every persisted entity.
func Models() []any {
	return []any{
		&folder.Folder{},
		&asset.Asset{},
		&asset.Version{},
		&asset.Event{},
		&upload.Intent{},
		&storage.Settings{},
		&retention.LocalPendingDeletion{},
		&retention.ExternalPendingDeletion{},
		&changelog.Entry{},
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	log.Info().Int("models", len(Models())).Msg("database migrated")
	return nil
}
