package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := New(Config{
		Endpoint:  endpoint,
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "assets",
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	return c
}

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	_, err := New(Config{Bucket: "b"})
	assert.Error(t, err)
	_, err = New(Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestPresignedURLsAreOffline(t *testing.T) {
	c := newClient(t, "127.0.0.1:9000")
	ctx := context.Background()

	upload, err := c.IssueUploadURL(ctx, "tenant/abc/logo.png")
	require.NoError(t, err)
	u, err := url.Parse(upload)
	require.NoError(t, err)
	assert.Equal(t, "/assets/tenant/abc/logo.png", u.Path)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))

	signed, err := c.SignedURL(ctx, "tenant/abc/logo.png", 5*time.Minute)
	require.NoError(t, err)
	u, err = url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))

	_, err = c.IssueUploadURL(ctx, "")
	assert.Error(t, err)
}

func TestStoreAndRemove(t *testing.T) {
	var (
		mu      sync.Mutex
		methods []string
		stored  = map[string]bool{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		methods = append(methods, r.Method)
		switch r.Method {
		case http.MethodPut:
			_, _ = io.Copy(io.Discard, r.Body)
			stored[r.URL.Path] = true
			w.Header().Set("ETag", `"etag"`)
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			delete(stored, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	c := newClient(t, strings.TrimPrefix(srv.URL, "http://"))
	ctx := context.Background()

	key, err := c.Store(ctx, []byte("hello"), "v1/readme.md", "text/markdown")
	require.NoError(t, err)
	assert.Equal(t, "v1/readme.md", key)

	mu.Lock()
	assert.True(t, stored["/assets/v1/readme.md"])
	mu.Unlock()

	require.NoError(t, c.Remove(ctx, "v1/readme.md"))
	mu.Lock()
	assert.NotContains(t, stored, "/assets/v1/readme.md")
	assert.Equal(t, []string{http.MethodPut, http.MethodDelete}, methods)
	mu.Unlock()
}
