package folder

import (
	"time"

	"assetvault/internal/domain/asset"
)

// Folder is one node of the hierarchical namespace. Nesting is implied by
// the path alone; no parent row is required.
type Folder struct {
	ID        string    `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	Path      string    `gorm:"column:path;not null;uniqueIndex:idx_folders_path" json:"path"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
	CreatedBy string    `gorm:"column:created_by" json:"created_by,omitempty"`
	UpdatedBy string    `gorm:"column:updated_by" json:"updated_by,omitempty"`
}

func (Folder) TableName() string { return "folders" }

// UpdateInput changes a folder's label and/or path. Nil fields are kept.
type UpdateInput struct {
	Name    *string `json:"name"`
	NewPath *string `json:"new_path"`
}

// AssetView is an asset with its published version resolved for display.
type AssetView struct {
	Asset     asset.Asset    `json:"asset"`
	Published *asset.Version `json:"published,omitempty"`
	URL       string         `json:"url,omitempty"`
}

type WithAssets struct {
	Folder Folder      `json:"folder"`
	Assets []AssetView `json:"assets"`
}

type DeleteResult struct {
	DeletedFolders  int `json:"deleted_folders"`
	DeletedAssets   int `json:"deleted_assets"`
	DeletedVersions int `json:"deleted_versions"`
}
