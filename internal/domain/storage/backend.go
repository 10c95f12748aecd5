package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Backend string

const (
	BackendLocal    Backend = "local"
	BackendExternal Backend = "external"
)

func (b Backend) Valid() bool {
	return b == BackendLocal || b == BackendExternal
}

func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	if !b.Valid() {
		return "", fmt.Errorf("%w: unknown backend %q", ErrValidation, s)
	}
	return b, nil
}

// Ref points at a version's bytes. A freshly written ref carries exactly one
// backend's fields; a version being migrated carries both until cleanup.
type Ref struct {
	LocalHandle string `json:"local_handle,omitempty"`
	ExternalKey string `json:"external_key,omitempty"`
	// ExternalURL is the public URL stamped when the external key was written.
	ExternalURL string `json:"external_url,omitempty"`
}

func LocalRef(handle string) Ref { return Ref{LocalHandle: handle} }

func ExternalRef(key, publicURL string) Ref { return Ref{ExternalKey: key, ExternalURL: publicURL} }

func (r Ref) IsZero() bool { return r.LocalHandle == "" && r.ExternalKey == "" }

// Backend reports which backend serves the ref. External wins while both
// references coexist.
func (r Ref) Backend() Backend {
	switch {
	case r.ExternalKey != "":
		return BackendExternal
	case r.LocalHandle != "":
		return BackendLocal
	default:
		return ""
	}
}

// BlobMetadata is what the local store reports about a stored blob.
type BlobMetadata struct {
	Size        int64
	ContentType string
	Checksum    string
}

// LocalBlobStore is the system blob store addressed by opaque handles.
type LocalBlobStore interface {
	IssueUploadURL(ctx context.Context) (string, error)
	// Get returns nil bytes and nil error when the handle does not exist.
	Get(ctx context.Context, handle string) ([]byte, error)
	// Stat returns nil metadata and nil error when the handle does not exist.
	Stat(ctx context.Context, handle string) (*BlobMetadata, error)
	RetrievalURL(ctx context.Context, handle string) (string, error)
	Delete(ctx context.Context, handle string) error
}

// ExternalObjectService is an object-storage service addressed by key.
// Deletes are performed out of band by the caller, never through this interface.
type ExternalObjectService interface {
	IssueUploadURL(ctx context.Context, key string) (string, error)
	Store(ctx context.Context, data []byte, key, contentType string) (string, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ObjectKey derives "{prefix/}{id}/{filename}". The same inputs always give
// the same key so retried uploads and migrations overwrite rather than leak.
func ObjectKey(prefix, id, filename string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	filename = strings.Trim(filename, "/")
	key := id + "/" + filename
	if prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

// PublicURL joins the configured public base URL with an object key,
// escaping each key segment.
func PublicURL(baseURL, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.Join(segments, "/")
}
