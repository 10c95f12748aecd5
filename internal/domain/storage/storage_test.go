package storage_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetvault/internal/domain/storage"
	"assetvault/internal/middleware"
	"assetvault/internal/testutil"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "abc/report.pdf", storage.ObjectKey("", "abc", "report.pdf"))
	assert.Equal(t, "tenant-a/abc/report.pdf", storage.ObjectKey("/tenant-a/", "abc", "report.pdf"))
}

func TestPublicURLEscapesSegments(t *testing.T) {
	got := storage.PublicURL("https://cdn.example.com/", "p/abc/my file.txt")
	assert.Equal(t, "https://cdn.example.com/p/abc/my%20file.txt", got)
}

func TestRefBackendPrefersExternal(t *testing.T) {
	assert.Equal(t, storage.BackendLocal, storage.LocalRef("h1").Backend())
	assert.Equal(t, storage.BackendExternal, storage.ExternalRef("k", "").Backend())
	both := storage.Ref{LocalHandle: "h1", ExternalKey: "k"}
	assert.Equal(t, storage.BackendExternal, both.Backend())
	assert.True(t, storage.Ref{}.IsZero())
	assert.Equal(t, storage.Backend(""), storage.Ref{}.Backend())
}

func TestSettingsDefaultToLocal(t *testing.T) {
	db := testutil.OpenDB(t, &storage.Settings{})
	repo := storage.NewSettingsRepository(db, nil)

	s, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.BackendLocal, s.Backend)
}

func TestSettingsExternalRequiresPublicURL(t *testing.T) {
	db := testutil.OpenDB(t, &storage.Settings{})
	repo := storage.NewSettingsRepository(db, nil)
	external := storage.BackendExternal

	_, err := repo.Set(context.Background(), storage.SettingsUpdate{Backend: &external}, "admin")
	assert.True(t, errors.Is(err, storage.ErrExternalNotConfigured))

	s, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.BackendLocal, s.Backend, "failed update must not persist")
}

func TestSettingsSetIsReadFresh(t *testing.T) {
	db := testutil.OpenDB(t, &storage.Settings{})
	clk := testutil.FixedClock()
	repo := storage.NewSettingsRepository(db, clk)
	ctx := context.Background()
	external := storage.BackendExternal
	base := "https://cdn.example.com"
	prefix := "/shared/"

	_, err := repo.Set(ctx, storage.SettingsUpdate{Backend: &external, PublicBaseURL: &base, KeyPrefix: &prefix}, "admin")
	require.NoError(t, err)

	s, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.BackendExternal, s.Backend)
	assert.Equal(t, "shared", s.KeyPrefix)
	assert.Equal(t, "admin", s.UpdatedBy)
	assert.True(t, s.UpdatedAt.Equal(clk.Now()), "stamped from the injected clock, got %s", s.UpdatedAt)

	local := storage.BackendLocal
	_, err = repo.Set(ctx, storage.SettingsUpdate{Backend: &local}, "admin")
	require.NoError(t, err)
	s, err = repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.BackendLocal, s.Backend)
	assert.Equal(t, base, s.PublicBaseURL, "untouched fields are kept")
}

func TestParseBackend(t *testing.T) {
	b, err := storage.ParseBackend(" External ")
	require.NoError(t, err)
	assert.Equal(t, storage.BackendExternal, b)

	_, err = storage.ParseBackend("tape")
	assert.ErrorIs(t, err, storage.ErrValidation)
}

func TestSettingsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.OpenDB(t, &storage.Settings{})
	r := gin.New()
	r.Use(middleware.Actor())
	storage.NewHandler(storage.NewSettingsRepository(db, nil)).RegisterRoutes(r.Group("/api/v1"))

	put := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/v1/storage/settings", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.ActorHeader, "ops")
		r.ServeHTTP(w, req)
		return w
	}

	w := put(`{"backend":"external"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = put(`{"backend":"tape"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = put(`{"backend":"external","public_base_url":"https://cdn.example.com","key_prefix":"/p/"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/storage/settings", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data storage.Settings `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, storage.BackendExternal, body.Data.Backend)
	assert.Equal(t, "p", body.Data.KeyPrefix)
	assert.Equal(t, "ops", body.Data.UpdatedBy)
}
