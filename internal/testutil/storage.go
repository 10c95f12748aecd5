package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"assetvault/internal/domain/storage"
)

// MemoryBlobStore is an in-memory LocalBlobStore. Safe for concurrent use.
type MemoryBlobStore struct {
	mu      sync.Mutex
	blobs   map[string]memoryBlob
	deleted []string
	issued  int
}

type memoryBlob struct {
	data        []byte
	contentType string
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string]memoryBlob)}
}

// Put stores bytes the way a client upload would and returns the handle.
func (m *MemoryBlobStore) Put(data []byte, contentType string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle := fmt.Sprintf("blob-%d", len(m.blobs)+len(m.deleted)+1)
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	m.blobs[handle] = memoryBlob{data: append([]byte(nil), data...), contentType: contentType}
	return handle
}

func (m *MemoryBlobStore) IssueUploadURL(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued++
	return fmt.Sprintf("memory://upload/%d", m.issued), nil
}

func (m *MemoryBlobStore) Get(_ context.Context, handle string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[handle]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), b.data...), nil
}

func (m *MemoryBlobStore) Stat(_ context.Context, handle string) (*storage.BlobMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[handle]
	if !ok {
		return nil, nil
	}
	sum := sha256.Sum256(b.data)
	return &storage.BlobMetadata{
		Size:        int64(len(b.data)),
		ContentType: b.contentType,
		Checksum:    hex.EncodeToString(sum[:]),
	}, nil
}

func (m *MemoryBlobStore) RetrievalURL(_ context.Context, handle string) (string, error) {
	return "memory://blob/" + handle, nil
}

func (m *MemoryBlobStore) Delete(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[handle]; ok {
		delete(m.blobs, handle)
		m.deleted = append(m.deleted, handle)
	}
	return nil
}

// Has reports whether the handle is still stored.
func (m *MemoryBlobStore) Has(handle string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[handle]
	return ok
}

// MemoryObjectService is an in-memory ExternalObjectService.
type MemoryObjectService struct {
	mu      sync.Mutex
	objects map[string][]byte
	// FailStore makes Store return an error, simulating a network failure.
	FailStore bool
}

var ErrSimulatedFailure = errors.New("simulated external failure")

func NewMemoryObjectService() *MemoryObjectService {
	return &MemoryObjectService{objects: make(map[string][]byte)}
}

// Put stores bytes under key the way a direct client upload would.
func (m *MemoryObjectService) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
}

func (m *MemoryObjectService) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

func (m *MemoryObjectService) IssueUploadURL(_ context.Context, key string) (string, error) {
	return "https://objects.test/upload/" + key, nil
}

func (m *MemoryObjectService) Store(_ context.Context, data []byte, key, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailStore {
		return "", ErrSimulatedFailure
	}
	m.objects[key] = append([]byte(nil), data...)
	return key, nil
}

func (m *MemoryObjectService) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://objects.test/signed/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

// Remove deletes an object; a missing key is not an error.
func (m *MemoryObjectService) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}
