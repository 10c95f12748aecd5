package changelog

import (
	"fmt"
	"strconv"
	"strings"

	"assetvault/internal/pkg/apperr"
)

type ChangeType string

const (
	ChangeFolderCreated    ChangeType = "folder_created"
	ChangeFolderUpdated    ChangeType = "folder_updated"
	ChangeFolderDeleted    ChangeType = "folder_deleted"
	ChangeAssetCreated     ChangeType = "asset_created"
	ChangeAssetRenamed     ChangeType = "asset_renamed"
	ChangeAssetMoved       ChangeType = "asset_moved"
	ChangeAssetDeleted     ChangeType = "asset_deleted"
	ChangeVersionCommitted ChangeType = "version_committed"
	ChangeVersionRestored  ChangeType = "version_restored"
)

// Entry is one append-only changelog row. Entries are ordered by
// (CreatedAt, ID); CreatedAt is unix milliseconds.
type Entry struct {
	ID            string     `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	ChangeType    ChangeType `gorm:"column:change_type;type:varchar(32);not null" json:"change_type"`
	FolderPath    string     `gorm:"column:folder_path;not null;index:idx_changelog_folder_created,priority:1" json:"folder_path"`
	Basename      string     `gorm:"column:basename" json:"basename,omitempty"`
	OldFolderPath string     `gorm:"column:old_folder_path" json:"old_folder_path,omitempty"`
	OldBasename   string     `gorm:"column:old_basename" json:"old_basename,omitempty"`
	VersionID     string     `gorm:"column:version_id" json:"version_id,omitempty"`
	Version       int        `gorm:"column:version" json:"version,omitempty"`
	PerformedBy   string     `gorm:"column:performed_by" json:"performed_by,omitempty"`
	CreatedAt     int64      `gorm:"column:created_at;not null;index:idx_changelog_created;index:idx_changelog_folder_created,priority:2" json:"created_at"`
}

func (Entry) TableName() string { return "changelog_entries" }

// Cursor is the compound position after which a listing resumes.
type Cursor struct {
	CreatedAt int64  `json:"created_at"`
	ID        string `json:"id"`
}

// Start is the cursor that precedes every entry.
var Start = Cursor{}

var ErrInvalidCursor = fmt.Errorf("%w: invalid changelog cursor", apperr.ErrValidation)

func (c Cursor) String() string {
	return strconv.FormatInt(c.CreatedAt, 10) + ":" + c.ID
}

// ParseCursor reads the "{createdAt}:{id}" wire form. An empty string is
// the start cursor.
func ParseCursor(s string) (Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Start, nil
	}
	ts, id, ok := strings.Cut(s, ":")
	if !ok {
		return Cursor{}, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	}
	createdAt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || createdAt < 0 {
		return Cursor{}, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	}
	return Cursor{CreatedAt: createdAt, ID: id}, nil
}

// Page is one slice of the log plus the cursor to continue from.
type Page struct {
	Entries    []Entry `json:"entries"`
	NextCursor Cursor  `json:"next_cursor"`
}

// Cursor returns the position of this entry.
func (e Entry) Cursor() Cursor {
	return Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
}
