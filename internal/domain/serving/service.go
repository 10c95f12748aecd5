// Package serving decides how a version's bytes reach an HTTP client:
// inline from the local blob store, or by redirect to a backend URL, with
// the cache policy that goes with each.
package serving

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"assetvault/internal/domain/asset"
	"assetvault/internal/domain/storage"
	"assetvault/internal/metrics"
)

// DefaultInlineLimit is the largest local blob served inline.
const DefaultInlineLimit int64 = 20 * 1024 * 1024

const DefaultContentType = "application/octet-stream"

const (
	CacheImmutable = "public, max-age=31536000, immutable"
	CacheShort     = "private, max-age=300"
	CacheNone      = "no-store"
)

type Kind string

const (
	KindBlob     Kind = "blob"
	KindRedirect Kind = "redirect"
	KindNotFound Kind = "not_found"
)

// Decision is everything a transport needs to answer one serve request.
type Decision struct {
	Kind         Kind
	Backend      storage.Backend
	Body         []byte
	ContentType  string
	Location     string
	CacheControl string
	Version      *asset.Version
}

var notFound = &Decision{Kind: KindNotFound, CacheControl: CacheNone}

type Service struct {
	assets      *asset.Service
	resolver    *storage.Resolver
	inlineLimit int64
	client      *http.Client
}

func NewService(assets *asset.Service, resolver *storage.Resolver, inlineLimit int64, client *http.Client) *Service {
	if inlineLimit <= 0 {
		inlineLimit = DefaultInlineLimit
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Service{assets: assets, resolver: resolver, inlineLimit: inlineLimit, client: client}
}

// GetVersionForServing serves any version by id, whatever its state.
func (s *Service) GetVersionForServing(ctx context.Context, versionID string) (*Decision, error) {
	v, err := s.assets.GetVersion(ctx, versionID)
	if errors.Is(err, asset.ErrVersionNotFound) {
		return s.record(notFound), nil
	}
	if err != nil {
		return nil, err
	}
	return s.decide(ctx, v)
}

// GetPublishedForServing serves the published version at folder/basename.
func (s *Service) GetPublishedForServing(ctx context.Context, folderPath, basename string) (*Decision, error) {
	_, v, err := s.assets.PublishedVersion(ctx, folderPath, basename)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return s.record(notFound), nil
	}
	return s.decide(ctx, v)
}

func (s *Service) decide(ctx context.Context, v *asset.Version) (*Decision, error) {
	d, err := s.decision(ctx, v)
	if err != nil {
		return nil, err
	}
	return s.record(d), nil
}

func (s *Service) decision(ctx context.Context, v *asset.Version) (*Decision, error) {
	ref := v.Ref()
	contentType := v.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	switch ref.Backend() {
	case storage.BackendExternal:
		url, err := s.resolver.PublicURL(ctx, ref)
		if err != nil {
			return nil, err
		}
		return &Decision{
			Kind:         KindRedirect,
			Backend:      storage.BackendExternal,
			ContentType:  contentType,
			Location:     url,
			CacheControl: CacheImmutable,
			Version:      v,
		}, nil

	case storage.BackendLocal:
		if v.Size > s.inlineLimit {
			url, err := s.resolver.Blobs().RetrievalURL(ctx, ref.LocalHandle)
			if err != nil {
				return nil, err
			}
			return &Decision{
				Kind:         KindRedirect,
				Backend:      storage.BackendLocal,
				ContentType:  contentType,
				Location:     url,
				CacheControl: CacheShort,
				Version:      v,
			}, nil
		}
		body, err := s.resolver.Blobs().Get(ctx, ref.LocalHandle)
		if err != nil {
			return nil, err
		}
		if body == nil {
			return notFound, nil
		}
		return &Decision{
			Kind:         KindBlob,
			Backend:      storage.BackendLocal,
			Body:         body,
			ContentType:  contentType,
			CacheControl: CacheImmutable,
			Version:      v,
		}, nil

	default:
		return notFound, nil
	}
}

func (s *Service) record(d *Decision) *Decision {
	metrics.ServeDecisions.WithLabelValues(string(d.Kind), string(d.Backend)).Inc()
	return d
}

// GetTextContent returns a version's bytes as text. External content is
// fetched server-side. ok is false on any failure or when there is no
// content.
func (s *Service) GetTextContent(ctx context.Context, versionID string) (text string, ok bool) {
	v, err := s.assets.GetVersion(ctx, versionID)
	if err != nil {
		return "", false
	}
	ref := v.Ref()

	var data []byte
	switch ref.Backend() {
	case storage.BackendLocal:
		data, err = s.resolver.Blobs().Get(ctx, ref.LocalHandle)
	case storage.BackendExternal:
		data, err = s.fetch(ctx, ref)
	default:
		return "", false
	}
	if err != nil {
		log.Debug().Err(err).Str("version_id", versionID).Msg("text content unavailable")
		return "", false
	}
	if data == nil {
		return "", false
	}
	return string(data), true
}

func (s *Service) fetch(ctx context.Context, ref storage.Ref) ([]byte, error) {
	url, err := s.resolver.PublicURL(ctx, ref)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, s.inlineLimit+1))
}
