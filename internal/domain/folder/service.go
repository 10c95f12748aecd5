package folder

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"assetvault/internal/domain/asset"
	"assetvault/internal/domain/changelog"
	"assetvault/internal/domain/storage"
	"assetvault/internal/pkg/clock"
	"assetvault/internal/pkg/dbutil"
	"assetvault/internal/pkg/pathutil"
)

type Service struct {
	db       *gorm.DB
	assets   *asset.Service
	resolver *storage.Resolver
	changes  *changelog.Service
	clock    clock.Clock
}

func NewService(db *gorm.DB, assets *asset.Service, resolver *storage.Resolver, changes *changelog.Service, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{db: db, assets: assets, resolver: resolver, changes: changes, clock: clk}
}

// CreateByPath creates a folder at an explicit path. name defaults to the
// last path segment.
func (s *Service) CreateByPath(ctx context.Context, path, name, actor string) (*Folder, error) {
	path = pathutil.Normalize(path)
	if path == "" {
		return nil, ErrEmptyPath
	}
	if strings.TrimSpace(name) == "" {
		name = pathutil.Base(path)
	}

	var f *Folder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := folderExists(tx, path)
		if err != nil {
			return err
		}
		if taken {
			return ErrFolderExists
		}
		f, err = s.insert(tx, path, name, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.changes.Notify(ctx)
	return f, nil
}

// CreateByName derives the path from a human label under parent. Reusing
// the exact label of an existing folder is a conflict; a different label
// that slugifies to a taken path gets a suffixed path instead.
func (s *Service) CreateByName(ctx context.Context, parent, label, actor string) (*Folder, error) {
	parent = pathutil.Normalize(parent)
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, ErrEmptyPath
	}
	slug := pathutil.Slugify(label)

	var f *Folder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		path := pathutil.Join(parent, slug)
		existing, err := findByPath(tx, path)
		if err != nil && !errors.Is(err, ErrFolderNotFound) {
			return err
		}
		if existing != nil {
			if existing.Name == label {
				return ErrFolderExists
			}
			path, err = pathutil.AllocateSegment(parent, slug, func(candidate string) (bool, error) {
				return folderExists(tx, candidate)
			})
			if err != nil {
				return err
			}
		}
		f, err = s.insert(tx, path, label, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.changes.Notify(ctx)
	return f, nil
}

func (s *Service) insert(tx *gorm.DB, path, name, actor string) (*Folder, error) {
	now := s.clock.Now()
	f := &Folder{
		ID:        uuid.New().String(),
		Path:      path,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: actor,
		UpdatedBy: actor,
	}
	if err := tx.Create(f).Error; err != nil {
		if dbutil.IsUniqueViolation(err) {
			return nil, ErrFolderExists
		}
		return nil, err
	}
	if err := s.changes.Append(tx, &changelog.Entry{
		ChangeType:  changelog.ChangeFolderCreated,
		FolderPath:  path,
		PerformedBy: actor,
	}); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) Get(ctx context.Context, path string) (*Folder, error) {
	return findByPath(s.db.WithContext(ctx), pathutil.Normalize(path))
}

// List returns the folders exactly one segment below parent.
func (s *Service) List(ctx context.Context, parent string) ([]Folder, error) {
	return listChildren(s.db.WithContext(ctx), parent)
}

// ListAll returns every folder in ascending path order.
func (s *Service) ListAll(ctx context.Context) ([]Folder, error) {
	var folders []Folder
	err := s.db.WithContext(ctx).Order("path ASC").Find(&folders).Error
	return folders, err
}

// ListWithAssets returns parent's direct children, each with its assets and
// their published URLs. URLs are resolved once per distinct version.
func (s *Service) ListWithAssets(ctx context.Context, parent string) ([]WithAssets, error) {
	db := s.db.WithContext(ctx)
	folders, err := listChildren(db, parent)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(folders))
	for i, f := range folders {
		paths[i] = f.Path
	}
	assets, err := asset.ListAssetsIn(db, paths)
	if err != nil {
		return nil, err
	}

	var versionIDs []string
	for _, a := range assets {
		if a.PublishedVersionID != nil {
			versionIDs = append(versionIDs, *a.PublishedVersionID)
		}
	}
	versions, err := s.assets.GetVersionsByID(ctx, versionIDs)
	if err != nil {
		return nil, err
	}
	urls := make(map[string]string, len(versions))
	for id, v := range versions {
		if v.Ref().IsZero() {
			continue
		}
		url, err := s.resolver.URL(ctx, v.Ref())
		if err != nil {
			log.Warn().Err(err).Str("version_id", id).Msg("resolve url failed")
			continue
		}
		urls[id] = url
	}

	byFolder := make(map[string][]AssetView, len(folders))
	for _, a := range assets {
		view := AssetView{Asset: a}
		if a.PublishedVersionID != nil {
			if v, ok := versions[*a.PublishedVersionID]; ok {
				view.Published = v
				view.URL = urls[v.ID]
			}
		}
		byFolder[a.FolderPath] = append(byFolder[a.FolderPath], view)
	}

	out := make([]WithAssets, len(folders))
	for i, f := range folders {
		views := byFolder[f.Path]
		if views == nil {
			views = []AssetView{}
		}
		out[i] = WithAssets{Folder: f, Assets: views}
	}
	return out, nil
}

// Update relabels and/or relocates a folder. Relocation carries every
// descendant folder and every asset beneath it along in one transaction.
func (s *Service) Update(ctx context.Context, path string, in UpdateInput, actor string) (*Folder, error) {
	path = pathutil.Normalize(path)
	var f *Folder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		f, err = findByPath(tx.Clauses(clause.Locking{Strength: "UPDATE"}), path)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		updates := map[string]any{"updated_at": now, "updated_by": actor}
		if in.Name != nil && strings.TrimSpace(*in.Name) != "" {
			f.Name = strings.TrimSpace(*in.Name)
			updates["name"] = f.Name
		}

		newPath := path
		if in.NewPath != nil {
			newPath = pathutil.Normalize(*in.NewPath)
			if newPath == "" {
				return ErrEmptyPath
			}
		}
		if newPath != path {
			if err := s.relocate(tx, path, newPath, now, actor); err != nil {
				return err
			}
			f.Path = newPath
			updates["path"] = newPath
		}

		if err := tx.Model(&Folder{}).Where("id = ?", f.ID).Updates(updates).Error; err != nil {
			if dbutil.IsUniqueViolation(err) {
				return ErrFolderExists
			}
			return err
		}
		f.UpdatedAt, f.UpdatedBy = now, actor

		entry := &changelog.Entry{
			ChangeType:  changelog.ChangeFolderUpdated,
			FolderPath:  newPath,
			PerformedBy: actor,
		}
		if newPath != path {
			entry.OldFolderPath = path
		}
		return s.changes.Append(tx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.changes.Notify(ctx)
	return f, nil
}

func (s *Service) relocate(tx *gorm.DB, oldPath, newPath string, now time.Time, actor string) error {
	if pathutil.IsWithin(newPath, oldPath) {
		return ErrMoveIntoSelf
	}
	taken, err := folderExists(tx, newPath)
	if err != nil {
		return err
	}
	if taken {
		return ErrFolderExists
	}
	// the target subtree must be empty, folders and loose assets alike
	var occupied int64
	if err := subtree(tx.Model(&Folder{}), "path", newPath).Count(&occupied).Error; err != nil {
		return err
	}
	if occupied == 0 {
		if err := atOrBelow(tx.Model(&asset.Asset{}), "folder_path", newPath).Count(&occupied).Error; err != nil {
			return err
		}
	}
	if occupied > 0 {
		return ErrFolderExists
	}

	var descendants []Folder
	if err := descendantsOf(tx, oldPath).Find(&descendants).Error; err != nil {
		return err
	}
	for _, d := range descendants {
		if err := tx.Model(&Folder{}).Where("id = ?", d.ID).Updates(map[string]any{
			"path":       newPath + d.Path[len(oldPath):],
			"updated_at": now,
			"updated_by": actor,
		}).Error; err != nil {
			return err
		}
	}
	return asset.RelocateFolderTx(tx, oldPath, newPath, now, actor)
}

// Delete removes a folder, every folder below it and every asset in any of
// them. Stored content goes to the retention queues.
func (s *Service) Delete(ctx context.Context, path, actor string) (*DeleteResult, error) {
	path = pathutil.Normalize(path)
	res := &DeleteResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findByPath(tx, path); err != nil {
			return err
		}
		var folders []Folder
		if err := atOrBelow(tx.Model(&Folder{}), "path", path).Order("path DESC").Find(&folders).Error; err != nil {
			return err
		}

		// assets may live under paths that have no folder row
		var assetFolders []string
		if err := atOrBelow(tx.Model(&asset.Asset{}), "folder_path", path).
			Distinct().Pluck("folder_path", &assetFolders).Error; err != nil {
			return err
		}
		for _, fp := range assetFolders {
			deleted, err := s.assets.DeleteInFolderTx(tx, fp, nil, actor)
			if err != nil {
				return err
			}
			res.DeletedAssets += deleted.DeletedAssets
			res.DeletedVersions += deleted.DeletedVersions
		}

		for _, f := range folders {
			if err := tx.Where("id = ?", f.ID).Delete(&Folder{}).Error; err != nil {
				return err
			}
			if err := s.changes.Append(tx, &changelog.Entry{
				ChangeType:  changelog.ChangeFolderDeleted,
				FolderPath:  f.Path,
				PerformedBy: actor,
			}); err != nil {
				return err
			}
			res.DeletedFolders++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.changes.Notify(ctx)
	log.Info().
		Str("path", path).
		Int("folders", res.DeletedFolders).
		Int("assets", res.DeletedAssets).
		Msg("folder deleted")
	return res, nil
}

func listChildren(db *gorm.DB, parent string) ([]Folder, error) {
	parent = pathutil.Normalize(parent)
	q := db.Model(&Folder{})
	if prefix := pathutil.ChildPrefix(parent); prefix != "" {
		q = q.Where("path >= ? AND path < ?", prefix, pathutil.PrefixUpperBound(prefix))
	}
	var candidates []Folder
	if err := q.Order("path ASC").Find(&candidates).Error; err != nil {
		return nil, err
	}
	want := pathutil.Depth(parent) + 1
	out := make([]Folder, 0, len(candidates))
	for _, f := range candidates {
		if pathutil.Depth(f.Path) == want {
			out = append(out, f)
		}
	}
	return out, nil
}

// subtree restricts q to column values strictly below root.
func subtree(q *gorm.DB, column, root string) *gorm.DB {
	prefix := pathutil.ChildPrefix(root)
	return q.Where(column+" >= ? AND "+column+" < ?", prefix, pathutil.PrefixUpperBound(prefix))
}

func atOrBelow(q *gorm.DB, column, root string) *gorm.DB {
	prefix := pathutil.ChildPrefix(root)
	return q.Where(column+" = ? OR ("+column+" >= ? AND "+column+" < ?)", root, prefix, pathutil.PrefixUpperBound(prefix))
}

func descendantsOf(tx *gorm.DB, root string) *gorm.DB {
	return subtree(tx.Model(&Folder{}), "path", root)
}

func findByPath(tx *gorm.DB, path string) (*Folder, error) {
	var f Folder
	err := tx.Where("path = ?", path).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFolderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func folderExists(tx *gorm.DB, path string) (bool, error) {
	var n int64
	err := tx.Model(&Folder{}).Where("path = ?", path).Count(&n).Error
	return n > 0, err
}
