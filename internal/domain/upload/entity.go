package upload

import (
	"encoding/json"
	"time"

	"assetvault/internal/domain/storage"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusFinalized Status = "finalized"
	StatusExpired   Status = "expired"
)

const DefaultIntentTTL = time.Hour

// Intent reserves an upload slot between StartUpload and FinishUpload.
type Intent struct {
	ID          string          `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	FolderPath  string          `gorm:"column:folder_path;not null" json:"folder_path"`
	Basename    string          `gorm:"column:basename;not null" json:"basename"`
	Filename    string          `gorm:"column:filename" json:"filename,omitempty"`
	Label       string          `gorm:"column:label" json:"label,omitempty"`
	Backend     storage.Backend `gorm:"column:backend;type:varchar(16);not null" json:"backend"`
	ObjectKey   string          `gorm:"column:object_key" json:"object_key,omitempty"`
	Status      Status          `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	ExpiresAt   time.Time       `gorm:"column:expires_at;not null" json:"expires_at"`
	CreatedAt   time.Time       `gorm:"column:created_at" json:"created_at"`
	CreatedBy   string          `gorm:"column:created_by" json:"created_by,omitempty"`
	FinalizedAt *time.Time      `gorm:"column:finalized_at" json:"finalized_at,omitempty"`
	VersionID   string          `gorm:"column:version_id;type:varchar(36)" json:"version_id,omitempty"`
}

func (Intent) TableName() string { return "upload_intents" }

type StartInput struct {
	FolderPath string `json:"folder_path"`
	Basename   string `json:"basename" binding:"required"`
	Filename   string `json:"filename"`
	Label      string `json:"label"`
	Actor      string `json:"-"`
}

type StartResult struct {
	IntentID  string          `json:"intent_id"`
	Backend   storage.Backend `json:"backend"`
	UploadURL string          `json:"upload_url"`
	ObjectKey string          `json:"object_key,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// FinishInput completes an intent. UploadResult is the local blob store's
// upload response body; Size and ContentType are only read for external
// uploads, whose bytes cannot be inspected synchronously.
type FinishInput struct {
	IntentID     string          `json:"-"`
	UploadResult json.RawMessage `json:"upload_result"`
	Size         int64           `json:"size"`
	ContentType  string          `json:"content_type"`
	Actor        string          `json:"-"`
}

type FinishResult struct {
	AssetID   string `json:"asset_id"`
	VersionID string `json:"version_id"`
	Version   int    `json:"version"`
}

// localUploadResult is what the local blob store answers to an upload.
type localUploadResult struct {
	StorageID string `json:"storageId"`
}
