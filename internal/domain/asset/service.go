package asset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"assetvault/internal/domain/changelog"
	"assetvault/internal/domain/retention"
	"assetvault/internal/domain/storage"
	"assetvault/internal/pkg/clock"
	"assetvault/internal/pkg/dbutil"
	"assetvault/internal/pkg/pathutil"
)

type Service struct {
	db        *gorm.DB
	resolver  *storage.Resolver
	retention *retention.Service
	changes   *changelog.Service
	clock     clock.Clock
}

func NewService(db *gorm.DB, resolver *storage.Resolver, retention *retention.Service, changes *changelog.Service, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{db: db, resolver: resolver, retention: retention, changes: changes, clock: clk}
}

// ValidateBasename rejects empty basenames and basenames that would escape
// their folder.
func ValidateBasename(basename string) error {
	if basename == "" || pathutil.HasSeparator(basename) || basename == "." || basename == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidBasename, basename)
	}
	return nil
}

// CreateAsset registers an asset with no versions.
func (s *Service) CreateAsset(ctx context.Context, folderPath, basename, actor string) (*Asset, error) {
	folderPath = pathutil.Normalize(folderPath)
	if err := ValidateBasename(basename); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	a := &Asset{
		ID:         uuid.New().String(),
		FolderPath: folderPath,
		Basename:   basename,
		CreatedAt:  now,
		UpdatedAt:  now,
		CreatedBy:  actor,
		UpdatedBy:  actor,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := assetExists(tx, folderPath, basename)
		if err != nil {
			return err
		}
		if exists {
			return ErrAssetExists
		}
		if err := tx.Create(a).Error; err != nil {
			if dbutil.IsUniqueViolation(err) {
				return ErrAssetExists
			}
			return err
		}
		return s.changes.Append(tx, &changelog.Entry{
			ChangeType:  changelog.ChangeAssetCreated,
			FolderPath:  folderPath,
			Basename:    basename,
			PerformedBy: actor,
		})
	})
	if err != nil {
		return nil, err
	}
	s.changes.Notify(ctx)
	return a, nil
}

// Commit appends a new published version, archiving the previous one. The
// counter read, archive and insert run in one transaction so concurrent
// commits on the same asset can never share a version number.
func (s *Service) Commit(ctx context.Context, in CommitInput) (*CommitResult, error) {
	var res *CommitResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.CommitTx(tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.changes.Notify(ctx)
	return res, nil
}

// CommitTx is Commit inside the caller's transaction. The caller must
// Notify the changelog after the transaction commits.
func (s *Service) CommitTx(tx *gorm.DB, in CommitInput) (*CommitResult, error) {
	in.FolderPath = pathutil.Normalize(in.FolderPath)
	if err := ValidateBasename(in.Basename); err != nil {
		return nil, err
	}

	a, created, err := s.getOrCreateForUpdate(tx, in.FolderPath, in.Basename, in.Actor)
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.changes.Append(tx, &changelog.Entry{
			ChangeType:  changelog.ChangeAssetCreated,
			FolderPath:  a.FolderPath,
			Basename:    a.Basename,
			PerformedBy: in.Actor,
		}); err != nil {
			return nil, err
		}
	}

	v := &Version{
		Label:       in.Label,
		LocalHandle: in.Ref.LocalHandle,
		ExternalKey: in.Ref.ExternalKey,
		ExternalURL: in.Ref.ExternalURL,
		Size:        in.Size,
		ContentType: in.ContentType,
		Checksum:    in.Checksum,
	}
	if err := s.publishTx(tx, a, v, in.Actor); err != nil {
		return nil, err
	}
	if err := s.changes.Append(tx, &changelog.Entry{
		ChangeType:  changelog.ChangeVersionCommitted,
		FolderPath:  a.FolderPath,
		Basename:    a.Basename,
		VersionID:   v.ID,
		Version:     v.Version,
		PerformedBy: in.Actor,
	}); err != nil {
		return nil, err
	}
	return &CommitResult{Asset: a, Version: v}, nil
}

// publishTx numbers v as the asset's next version, archives whatever is
// currently published, inserts v as published and moves the pointer. a must
// have been read under a row lock in tx.
func (s *Service) publishTx(tx *gorm.DB, a *Asset, v *Version, actor string) error {
	now := s.clock.Now()
	a.VersionCounter++

	if err := tx.Model(&Version{}).
		Where("asset_id = ? AND state = ?", a.ID, StatePublished).
		Updates(map[string]any{"state": StateArchived, "archived_at": now}).Error; err != nil {
		return err
	}

	v.ID = uuid.New().String()
	v.AssetID = a.ID
	v.Version = a.VersionCounter
	v.State = StatePublished
	v.CreatedAt = now
	v.CreatedBy = actor
	if err := tx.Create(v).Error; err != nil {
		return err
	}

	a.PublishedVersionID = &v.ID
	a.UpdatedAt = now
	a.UpdatedBy = actor
	return tx.Model(&Asset{}).Where("id = ?", a.ID).Updates(map[string]any{
		"version_counter":      a.VersionCounter,
		"published_version_id": v.ID,
		"updated_at":           now,
		"updated_by":           actor,
	}).Error
}

// Restore publishes a brand-new version that points at the source version's
// stored bytes. The source version itself is left untouched.
func (s *Service) Restore(ctx context.Context, versionID, label, actor string) (*CommitResult, error) {
	var res *CommitResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var src Version
		if err := tx.Where("id = ?", versionID).First(&src).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVersionNotFound
			}
			return err
		}
		if src.Ref().IsZero() {
			return ErrNoAssociatedFile
		}

		var a Asset
		if err := lockAsset(tx).Where("id = ?", src.AssetID).First(&a).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAssetNotFound
			}
			return err
		}

		if label == "" {
			label = fmt.Sprintf("Restored from v%d", src.Version)
		}
		from := src.Version
		v := &Version{
			Label:               label,
			LocalHandle:         src.LocalHandle,
			ExternalKey:         src.ExternalKey,
			ExternalURL:         src.ExternalURL,
			Size:                src.Size,
			ContentType:         src.ContentType,
			Checksum:            src.Checksum,
			RestoredFromVersion: &from,
			MigratedAt:          src.MigratedAt,
		}
		if err := s.publishTx(tx, &a, v, actor); err != nil {
			return err
		}
		res = &CommitResult{Asset: &a, Version: v}
		return s.changes.Append(tx, &changelog.Entry{
			ChangeType:  changelog.ChangeVersionRestored,
			FolderPath:  a.FolderPath,
			Basename:    a.Basename,
			VersionID:   v.ID,
			Version:     v.Version,
			PerformedBy: actor,
		})
	})
	if err != nil {
		return nil, err
	}
	s.changes.Notify(ctx)
	return res, nil
}

// Rename changes an asset's basename within its folder.
func (s *Service) Rename(ctx context.Context, folderPath, basename, newBasename, actor string) (*Asset, error) {
	folderPath = pathutil.Normalize(folderPath)
	if err := ValidateBasename(newBasename); err != nil {
		return nil, err
	}
	return s.relocate(ctx, folderPath, basename, folderPath, newBasename, EventRename, actor)
}

// Move places an asset in another folder, keeping its basename.
func (s *Service) Move(ctx context.Context, fromFolderPath, basename, toFolderPath, actor string) (*Asset, error) {
	return s.relocate(ctx, pathutil.Normalize(fromFolderPath), basename, pathutil.Normalize(toFolderPath), basename, EventMove, actor)
}

func (s *Service) relocate(ctx context.Context, fromFolder, fromName, toFolder, toName string, kind EventType, actor string) (*Asset, error) {
	var a Asset
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockAsset(tx).Where("folder_path = ? AND basename = ?", fromFolder, fromName).First(&a).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAssetNotFound
			}
			return err
		}
		if fromFolder == toFolder && fromName == toName {
			return nil
		}
		exists, err := assetExists(tx, toFolder, toName)
		if err != nil {
			return err
		}
		if exists {
			return ErrAssetExists
		}

		now := s.clock.Now()
		if err := tx.Model(&Asset{}).Where("id = ?", a.ID).Updates(map[string]any{
			"folder_path": toFolder,
			"basename":    toName,
			"updated_at":  now,
			"updated_by":  actor,
		}).Error; err != nil {
			if dbutil.IsUniqueViolation(err) {
				return ErrAssetExists
			}
			return err
		}
		a.FolderPath, a.Basename, a.UpdatedAt, a.UpdatedBy = toFolder, toName, now, actor

		if err := tx.Create(&Event{
			ID:             uuid.New().String(),
			AssetID:        a.ID,
			Type:           kind,
			FromFolderPath: fromFolder,
			ToFolderPath:   toFolder,
			FromBasename:   fromName,
			ToBasename:     toName,
			PerformedBy:    actor,
			CreatedAt:      now,
		}).Error; err != nil {
			return err
		}

		changeType := changelog.ChangeAssetRenamed
		if kind == EventMove {
			changeType = changelog.ChangeAssetMoved
		}
		return s.changes.Append(tx, &changelog.Entry{
			ChangeType:    changeType,
			FolderPath:    toFolder,
			Basename:      toName,
			OldFolderPath: fromFolder,
			OldBasename:   fromName,
			PerformedBy:   actor,
		})
	})
	if err != nil {
		return nil, err
	}
	s.changes.Notify(ctx)
	return &a, nil
}

// Delete removes one asset with its versions and events, queueing every
// stored reference for retention.
func (s *Service) Delete(ctx context.Context, folderPath, basename, actor string) (*DeleteResult, error) {
	folderPath = pathutil.Normalize(folderPath)
	var res *DeleteResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.DeleteInFolderTx(tx, folderPath, []string{basename}, actor)
		if err != nil {
			return err
		}
		if res.DeletedAssets == 0 {
			return ErrAssetNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.changes.Notify(ctx)
	return res, nil
}

// DeleteInFolder removes the named assets of a folder, or every asset in it
// when basenames is nil. Missing basenames are ignored.
func (s *Service) DeleteInFolder(ctx context.Context, folderPath string, basenames []string, actor string) (*DeleteResult, error) {
	folderPath = pathutil.Normalize(folderPath)
	var res *DeleteResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.DeleteInFolderTx(tx, folderPath, basenames, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.DeletedAssets > 0 {
		s.changes.Notify(ctx)
	}
	return res, nil
}

// DeleteInFolderTx is DeleteInFolder inside the caller's transaction.
func (s *Service) DeleteInFolderTx(tx *gorm.DB, folderPath string, basenames []string, actor string) (*DeleteResult, error) {
	q := lockAsset(tx).Where("folder_path = ?", folderPath)
	if basenames != nil {
		if len(basenames) == 0 {
			return &DeleteResult{}, nil
		}
		q = q.Where("basename IN ?", basenames)
	}
	var assets []Asset
	if err := q.Find(&assets).Error; err != nil {
		return nil, err
	}

	res := &DeleteResult{}
	for i := range assets {
		a := &assets[i]
		var versions []Version
		if err := tx.Where("asset_id = ?", a.ID).Find(&versions).Error; err != nil {
			return nil, err
		}
		if err := tx.Where("asset_id = ?", a.ID).Delete(&Version{}).Error; err != nil {
			return nil, err
		}
		for _, v := range versions {
			ref, err := unreferenced(tx, v.Ref())
			if err != nil {
				return nil, err
			}
			if err := s.retention.EnqueueRef(tx, ref, a.Path(), actor); err != nil {
				return nil, err
			}
		}
		if err := tx.Where("asset_id = ?", a.ID).Delete(&Event{}).Error; err != nil {
			return nil, err
		}
		if err := tx.Where("id = ?", a.ID).Delete(&Asset{}).Error; err != nil {
			return nil, err
		}
		if err := s.changes.Append(tx, &changelog.Entry{
			ChangeType:  changelog.ChangeAssetDeleted,
			FolderPath:  a.FolderPath,
			Basename:    a.Basename,
			PerformedBy: actor,
		}); err != nil {
			return nil, err
		}
		res.DeletedAssets++
		res.DeletedVersions += len(versions)
	}
	if res.DeletedAssets > 0 {
		log.Info().
			Str("folder_path", folderPath).
			Int("assets", res.DeletedAssets).
			Int("versions", res.DeletedVersions).
			Msg("assets deleted")
	}
	return res, nil
}

// unreferenced drops the parts of ref that a remaining version still points
// at, so shared bytes outlive the deletion of one of their versions.
func unreferenced(tx *gorm.DB, ref storage.Ref) (storage.Ref, error) {
	out := storage.Ref{}
	if ref.LocalHandle != "" {
		var n int64
		if err := tx.Model(&Version{}).Where("local_handle = ?", ref.LocalHandle).Count(&n).Error; err != nil {
			return out, err
		}
		if n == 0 {
			out.LocalHandle = ref.LocalHandle
		}
	}
	if ref.ExternalKey != "" {
		var n int64
		if err := tx.Model(&Version{}).Where("external_key = ?", ref.ExternalKey).Count(&n).Error; err != nil {
			return out, err
		}
		if n == 0 {
			out.ExternalKey = ref.ExternalKey
		}
	}
	return out, nil
}

// ResolvePublished returns the published version of an asset with its
// fetchable URL, or nil when the asset, its published version or that
// version's stored bytes are missing.
func (s *Service) ResolvePublished(ctx context.Context, folderPath, basename string) (*Published, error) {
	a, v, err := s.PublishedVersion(ctx, folderPath, basename)
	if err != nil || v == nil {
		return nil, err
	}
	url, err := s.resolver.URL(ctx, v.Ref())
	if err != nil {
		return nil, err
	}
	return &Published{Asset: a, Version: v, URL: url}, nil
}

// PublishedVersion is ResolvePublished without URL resolution.
func (s *Service) PublishedVersion(ctx context.Context, folderPath, basename string) (*Asset, *Version, error) {
	a, err := s.GetAsset(ctx, folderPath, basename)
	if errors.Is(err, ErrAssetNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if a.PublishedVersionID == nil {
		return a, nil, nil
	}
	v, err := s.GetVersion(ctx, *a.PublishedVersionID)
	if errors.Is(err, ErrVersionNotFound) {
		return a, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if v.State != StatePublished || v.Ref().IsZero() {
		return a, nil, nil
	}
	return a, v, nil
}

func (s *Service) GetAsset(ctx context.Context, folderPath, basename string) (*Asset, error) {
	var a Asset
	err := s.db.WithContext(ctx).
		Where("folder_path = ? AND basename = ?", pathutil.Normalize(folderPath), basename).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Service) GetAssetByID(ctx context.Context, id string) (*Asset, error) {
	var a Asset
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAssets returns the assets directly inside a folder, by basename.
func (s *Service) ListAssets(ctx context.Context, folderPath string) ([]Asset, error) {
	return ListAssetsIn(s.db.WithContext(ctx), []string{pathutil.Normalize(folderPath)})
}

// ListAssetsIn returns the assets of any of the given folders.
func ListAssetsIn(tx *gorm.DB, folderPaths []string) ([]Asset, error) {
	var assets []Asset
	if len(folderPaths) == 0 {
		return assets, nil
	}
	err := tx.Where("folder_path IN ?", folderPaths).
		Order("folder_path ASC").Order("basename ASC").
		Find(&assets).Error
	return assets, err
}

func (s *Service) GetVersion(ctx context.Context, id string) (*Version, error) {
	var v Version
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVersionsByID loads versions keyed by id; missing ids are absent.
func (s *Service) GetVersionsByID(ctx context.Context, ids []string) (map[string]*Version, error) {
	out := make(map[string]*Version, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var versions []Version
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&versions).Error; err != nil {
		return nil, err
	}
	for i := range versions {
		out[versions[i].ID] = &versions[i]
	}
	return out, nil
}

// ListVersions returns an asset's versions, newest first.
func (s *Service) ListVersions(ctx context.Context, assetID string) ([]Version, error) {
	var versions []Version
	err := s.db.WithContext(ctx).Where("asset_id = ?", assetID).Order("version DESC").Find(&versions).Error
	return versions, err
}

func (s *Service) ListEvents(ctx context.Context, assetID string) ([]Event, error) {
	var events []Event
	err := s.db.WithContext(ctx).Where("asset_id = ?", assetID).Order("created_at ASC").Find(&events).Error
	return events, err
}

// RelocateFolderTx rewrites the folder path of every asset under oldPrefix,
// including nested folders, to live under newPrefix.
func RelocateFolderTx(tx *gorm.DB, oldPrefix, newPrefix string, now time.Time, actor string) error {
	var assets []Asset
	err := tx.Where("folder_path = ? OR (folder_path >= ? AND folder_path < ?)",
		oldPrefix, oldPrefix+pathutil.Separator, pathutil.PrefixUpperBound(oldPrefix+pathutil.Separator)).
		Find(&assets).Error
	if err != nil {
		return err
	}
	for _, a := range assets {
		target := newPrefix + a.FolderPath[len(oldPrefix):]
		if err := tx.Model(&Asset{}).Where("id = ?", a.ID).Updates(map[string]any{
			"folder_path": target,
			"updated_at":  now,
			"updated_by":  actor,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) getOrCreateForUpdate(tx *gorm.DB, folderPath, basename, actor string) (*Asset, bool, error) {
	var a Asset
	err := lockAsset(tx).Where("folder_path = ? AND basename = ?", folderPath, basename).First(&a).Error
	if err == nil {
		return &a, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	now := s.clock.Now()
	a = Asset{
		ID:         uuid.New().String(),
		FolderPath: folderPath,
		Basename:   basename,
		CreatedAt:  now,
		UpdatedAt:  now,
		CreatedBy:  actor,
		UpdatedBy:  actor,
	}
	// a concurrent creator may win the insert; fall back to its row
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&a)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return &a, true, nil
	}
	if err := lockAsset(tx).Where("folder_path = ? AND basename = ?", folderPath, basename).First(&a).Error; err != nil {
		return nil, false, err
	}
	return &a, false, nil
}

func lockAsset(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func assetExists(tx *gorm.DB, folderPath, basename string) (bool, error) {
	var n int64
	err := tx.Model(&Asset{}).Where("folder_path = ? AND basename = ?", folderPath, basename).Count(&n).Error
	return n > 0, err
}
