package asset

import (
	"time"

	"assetvault/internal/domain/storage"
	"assetvault/internal/pkg/pathutil"
)

type VersionState string

const (
	StatePublished VersionState = "published"
	StateArchived  VersionState = "archived"
)

// Asset is a named, versioned file slot inside a folder.
type Asset struct {
	ID                 string    `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	FolderPath         string    `gorm:"column:folder_path;not null;uniqueIndex:idx_assets_folder_basename,priority:1" json:"folder_path"`
	Basename           string    `gorm:"column:basename;not null;uniqueIndex:idx_assets_folder_basename,priority:2" json:"basename"`
	VersionCounter     int       `gorm:"column:version_counter;not null" json:"version_counter"`
	PublishedVersionID *string   `gorm:"column:published_version_id;type:varchar(36)" json:"published_version_id,omitempty"`
	CreatedAt          time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at" json:"updated_at"`
	CreatedBy          string    `gorm:"column:created_by" json:"created_by,omitempty"`
	UpdatedBy          string    `gorm:"column:updated_by" json:"updated_by,omitempty"`
}

func (Asset) TableName() string { return "assets" }

// Path is the asset's full folder-qualified path.
func (a *Asset) Path() string { return pathutil.Join(a.FolderPath, a.Basename) }

// Version is one content snapshot of an asset. Everything except the state,
// archival and migration fields is immutable once written.
type Version struct {
	ID                  string       `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	AssetID             string       `gorm:"column:asset_id;type:varchar(36);not null;index;uniqueIndex:idx_asset_versions_asset_version,priority:1" json:"asset_id"`
	Version             int          `gorm:"column:version;not null;uniqueIndex:idx_asset_versions_asset_version,priority:2" json:"version"`
	State               VersionState `gorm:"column:state;type:varchar(16);not null;index" json:"state"`
	Label               string       `gorm:"column:label" json:"label,omitempty"`
	LocalHandle         string       `gorm:"column:local_handle;index" json:"local_handle,omitempty"`
	ExternalKey         string       `gorm:"column:external_key;index" json:"external_key,omitempty"`
	ExternalURL         string       `gorm:"column:external_url" json:"external_url,omitempty"`
	Size                int64        `gorm:"column:size" json:"size"`
	ContentType         string       `gorm:"column:content_type" json:"content_type,omitempty"`
	Checksum            string       `gorm:"column:checksum" json:"checksum,omitempty"`
	RestoredFromVersion *int         `gorm:"column:restored_from_version" json:"restored_from_version,omitempty"`
	ArchivedAt          *time.Time   `gorm:"column:archived_at" json:"archived_at,omitempty"`
	MigratedAt          *time.Time   `gorm:"column:migrated_at" json:"migrated_at,omitempty"`
	CreatedAt           time.Time    `gorm:"column:created_at" json:"created_at"`
	CreatedBy           string       `gorm:"column:created_by" json:"created_by,omitempty"`
}

func (Version) TableName() string { return "asset_versions" }

func (v *Version) Ref() storage.Ref {
	return storage.Ref{LocalHandle: v.LocalHandle, ExternalKey: v.ExternalKey, ExternalURL: v.ExternalURL}
}

type EventType string

const (
	EventMove   EventType = "move"
	EventRename EventType = "rename"
)

// Event is the audit trail of structural changes to an asset.
type Event struct {
	ID             string    `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	AssetID        string    `gorm:"column:asset_id;type:varchar(36);not null;index" json:"asset_id"`
	Type           EventType `gorm:"column:type;type:varchar(16);not null" json:"type"`
	FromFolderPath string    `gorm:"column:from_folder_path" json:"from_folder_path"`
	ToFolderPath   string    `gorm:"column:to_folder_path" json:"to_folder_path"`
	FromBasename   string    `gorm:"column:from_basename" json:"from_basename"`
	ToBasename     string    `gorm:"column:to_basename" json:"to_basename"`
	PerformedBy    string    `gorm:"column:performed_by" json:"performed_by,omitempty"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Event) TableName() string { return "asset_events" }

// CommitInput describes new content for (FolderPath, Basename).
type CommitInput struct {
	FolderPath  string
	Basename    string
	Label       string
	Ref         storage.Ref
	Size        int64
	ContentType string
	Checksum    string
	Actor       string
}

type CommitResult struct {
	Asset   *Asset   `json:"asset"`
	Version *Version `json:"version"`
}

// Published is a resolved published version.
type Published struct {
	Asset   *Asset   `json:"asset"`
	Version *Version `json:"version"`
	URL     string   `json:"url"`
}

type DeleteResult struct {
	DeletedAssets   int `json:"deleted_assets"`
	DeletedVersions int `json:"deleted_versions"`
}
