// Package blobstore is the local blob backend: content-addressed-by-handle
// files on disk, written and read through signed URLs.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"assetvault/internal/domain/storage"
	"assetvault/internal/pkg/jwt"
)

const (
	DefaultUploadTTL = time.Hour
	DefaultReadTTL   = storage.DefaultSignedURLTTL

	pendingDir = ".uploads"
	metaSuffix = ".meta.json"
)

var (
	ErrTokenUsed     = errors.New("upload token already used")
	ErrInvalidHandle = errors.New("invalid blob handle")
)

type Config struct {
	Dir string
	// BaseURL is the absolute URL the blob routes are mounted at.
	BaseURL   string
	UploadTTL time.Duration
	ReadTTL   time.Duration
}

// Store implements storage.LocalBlobStore on a directory.
type Store struct {
	dir       string
	baseURL   string
	tokens    *jwt.Service
	uploadTTL time.Duration
	readTTL   time.Duration
}

type meta struct {
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Checksum    string `json:"checksum"`
}

var _ storage.LocalBlobStore = (*Store)(nil)

func New(cfg Config, tokens *jwt.Service) (*Store, error) {
	if cfg.UploadTTL <= 0 {
		cfg.UploadTTL = DefaultUploadTTL
	}
	if cfg.ReadTTL <= 0 {
		cfg.ReadTTL = DefaultReadTTL
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dir, pendingDir), 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Store{
		dir:       cfg.Dir,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		tokens:    tokens,
		uploadTTL: cfg.UploadTTL,
		readTTL:   cfg.ReadTTL,
	}, nil
}

// IssueUploadURL returns a one-shot URL accepting a single POST body.
func (s *Store) IssueUploadURL(context.Context) (string, error) {
	token, claims, err := s.tokens.GenerateToken(jwt.ScopeUpload, "", s.uploadTTL)
	if err != nil {
		return "", err
	}
	// the marker is removed on first use; a missing marker means spent
	if err := os.WriteFile(s.pendingPath(claims.ID), nil, 0o600); err != nil {
		return "", fmt.Errorf("record upload token: %w", err)
	}
	return s.baseURL + "/upload?token=" + url.QueryEscape(token), nil
}

// Accept stores an upload body under a new handle after consuming the
// upload token.
func (s *Store) Accept(ctx context.Context, token string, body io.Reader, contentType string) (string, error) {
	claims, err := s.tokens.ValidateToken(token, jwt.ScopeUpload)
	if err != nil {
		return "", err
	}
	if err := os.Remove(s.pendingPath(claims.ID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrTokenUsed
		}
		return "", err
	}
	return s.write(ctx, body, contentType)
}

func (s *Store) write(_ context.Context, body io.Reader, contentType string) (string, error) {
	handle := uuid.New().String()
	tmp, err := os.CreateTemp(filepath.Join(s.dir, pendingDir), "blob-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	var head bytes.Buffer
	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash, &limitedBuffer{buf: &head, max: 512}), body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}

	if contentType == "" {
		contentType = http.DetectContentType(head.Bytes())
	}
	m := meta{Size: size, ContentType: contentType, Checksum: hex.EncodeToString(hash.Sum(nil))}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(s.metaPath(handle), raw, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), s.dataPath(handle)); err != nil {
		_ = os.Remove(s.metaPath(handle))
		return "", err
	}
	return handle, nil
}

func (s *Store) Get(_ context.Context, handle string) ([]byte, error) {
	if !validHandle(handle) {
		return nil, nil
	}
	data, err := os.ReadFile(s.dataPath(handle))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Open streams a blob; the caller closes it. Missing handles return nil.
func (s *Store) Open(ctx context.Context, handle string) (io.ReadCloser, *storage.BlobMetadata, error) {
	m, err := s.Stat(ctx, handle)
	if err != nil || m == nil {
		return nil, nil, err
	}
	f, err := os.Open(s.dataPath(handle))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return f, m, nil
}

func (s *Store) Stat(_ context.Context, handle string) (*storage.BlobMetadata, error) {
	if !validHandle(handle) {
		return nil, nil
	}
	raw, err := os.ReadFile(s.metaPath(handle))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode blob metadata: %w", err)
	}
	return &storage.BlobMetadata{Size: m.Size, ContentType: m.ContentType, Checksum: m.Checksum}, nil
}

// RetrievalURL returns a read URL valid for the configured read TTL.
func (s *Store) RetrievalURL(_ context.Context, handle string) (string, error) {
	if !validHandle(handle) {
		return "", ErrInvalidHandle
	}
	token, _, err := s.tokens.GenerateToken(jwt.ScopeRead, handle, s.readTTL)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/" + handle + "?token=" + url.QueryEscape(token), nil
}

// Authorize checks a read token against the handle it must be bound to.
func (s *Store) Authorize(token, handle string) error {
	claims, err := s.tokens.ValidateToken(token, jwt.ScopeRead)
	if err != nil {
		return err
	}
	if claims.Handle != handle {
		return jwt.ErrInvalidToken
	}
	return nil
}

func (s *Store) Delete(_ context.Context, handle string) error {
	if !validHandle(handle) {
		return ErrInvalidHandle
	}
	for _, p := range []string{s.dataPath(handle), s.metaPath(handle)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *Store) dataPath(handle string) string { return filepath.Join(s.dir, handle) }

func (s *Store) metaPath(handle string) string { return filepath.Join(s.dir, handle+metaSuffix) }

func (s *Store) pendingPath(tokenID string) string {
	return filepath.Join(s.dir, pendingDir, "token-"+tokenID)
}

func validHandle(handle string) bool {
	_, err := uuid.Parse(handle)
	return err == nil && len(handle) == 36
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := l.max - l.buf.Len(); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		l.buf.Write(p[:room])
	}
	return len(p), nil
}
