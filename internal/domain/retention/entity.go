package retention

import "time"

// DefaultGracePeriod is how long a deleted storage reference stays
// recoverable before it may be hard-deleted.
const DefaultGracePeriod = 30 * 24 * time.Hour

// PendingDeletion is a storage reference waiting out its grace period.
// Each backend keeps its own queue table.
type PendingDeletion struct {
	ID           string    `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	StorageRef   string    `gorm:"column:storage_ref;not null;uniqueIndex" json:"storage_ref"`
	OriginalPath string    `gorm:"column:original_path" json:"original_path"`
	DeletedAt    time.Time `gorm:"column:deleted_at;not null" json:"deleted_at"`
	DeleteAfter  time.Time `gorm:"column:delete_after;not null;index" json:"delete_after"`
	DeletedBy    string    `gorm:"column:deleted_by" json:"deleted_by,omitempty"`
}

// LocalPendingDeletion is the queue row type for local blob handles.
type LocalPendingDeletion struct {
	PendingDeletion
}

func (LocalPendingDeletion) TableName() string { return "local_pending_deletions" }

// ExternalPendingDeletion is the queue row type for external object keys.
type ExternalPendingDeletion struct {
	PendingDeletion
}

func (ExternalPendingDeletion) TableName() string { return "external_pending_deletions" }

// ProcessResult reports one sweep batch. ExternalKeys lists the objects the
// caller must now delete at the external service.
type ProcessResult struct {
	Backend      string   `json:"backend"`
	Processed    int      `json:"processed"`
	Failed       int      `json:"failed"`
	ExternalKeys []string `json:"external_keys,omitempty"`
}
