package storage

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// DefaultSignedURLTTL bounds backend-issued time-limited URLs.
const DefaultSignedURLTTL = 15 * time.Minute

// Resolver turns stored refs into URLs a client can fetch.
type Resolver struct {
	db       *gorm.DB
	blobs    LocalBlobStore
	external ExternalObjectService
}

func NewResolver(db *gorm.DB, blobs LocalBlobStore, external ExternalObjectService) *Resolver {
	return &Resolver{db: db, blobs: blobs, external: external}
}

func (r *Resolver) Blobs() LocalBlobStore { return r.blobs }

func (r *Resolver) External() ExternalObjectService { return r.external }

// Settings reads the storage settings fresh.
func (r *Resolver) Settings(ctx context.Context) (*Settings, error) {
	return LoadSettings(r.db.WithContext(ctx))
}

// PublicURL resolves the stable public URL of an external ref: the URL
// stamped on the version if present, otherwise the currently configured base.
func (r *Resolver) PublicURL(ctx context.Context, ref Ref) (string, error) {
	if ref.ExternalURL != "" {
		return ref.ExternalURL, nil
	}
	settings, err := r.Settings(ctx)
	if err != nil {
		return "", err
	}
	if err := settings.External().Validate(); err != nil {
		return "", err
	}
	return PublicURL(settings.PublicBaseURL, ref.ExternalKey), nil
}

// URL resolves a ref to a fetchable URL: the public URL for external refs,
// a time-limited retrieval URL for local ones. An empty ref resolves to "".
func (r *Resolver) URL(ctx context.Context, ref Ref) (string, error) {
	switch ref.Backend() {
	case BackendExternal:
		return r.PublicURL(ctx, ref)
	case BackendLocal:
		return r.blobs.RetrievalURL(ctx, ref.LocalHandle)
	default:
		return "", nil
	}
}
