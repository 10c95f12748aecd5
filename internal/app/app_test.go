package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetvault/internal/config"
	"assetvault/internal/database"
	"assetvault/internal/domain/asset"
	"assetvault/internal/domain/storage"
	"assetvault/internal/domain/upload"
	"assetvault/internal/middleware"
	"assetvault/internal/testutil"
)

type fixture struct {
	app     *App
	router  *gin.Engine
	blobs   *testutil.MemoryBlobStore
	objects *testutil.MemoryObjectService
	clock   *testutil.StubClock
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.OpenDB(t, database.Models()...)
	cfg := &config.Config{
		ServePrefix:      "/fs",
		UploadIntentTTL:  time.Hour,
		RetentionGrace:   24 * time.Hour,
		InlineServeLimit: 1 << 20,
	}
	clk := testutil.FixedClock()
	blobs := testutil.NewMemoryBlobStore()
	objects := testutil.NewMemoryObjectService()
	a := Build(cfg, db, clk, blobs, objects, nil)
	return &fixture{app: a, router: a.Router(), blobs: blobs, objects: objects, clock: clk}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.ActorHeader, "tester")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Success bool `json:"success"`
		Data    T    `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.True(t, env.Success, w.Body.String())
	return env.Data
}

func TestUploadThenServeThroughRouter(t *testing.T) {
	f := setup(t)

	w := f.do(t, http.MethodPost, "/api/v1/folders", map[string]string{"path": "docs"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/v1/uploads", map[string]string{"folder_path": "docs", "basename": "readme.txt"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	start := decode[struct {
		IntentID string `json:"intent_id"`
	}](t, w)

	handle := f.blobs.Put([]byte("hello vault"), "text/plain")
	w = f.do(t, http.MethodPost, "/api/v1/uploads/"+start.IntentID+"/finish", map[string]any{
		"upload_result": map[string]string{"storageId": handle},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/fs/docs/readme.txt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello vault", w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = f.do(t, http.MethodGet, "/fs/docs/missing.txt", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSweepRetentionAfterGrace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	handle := f.blobs.Put([]byte("old"), "")
	_, err := f.app.Assets.Commit(ctx, asset.CommitInput{FolderPath: "x", Basename: "a.bin", Ref: storage.LocalRef(handle), Actor: "tester"})
	require.NoError(t, err)
	_, err = f.app.Assets.Delete(ctx, "x", "a.bin", "tester")
	require.NoError(t, err)

	report, err := f.app.SweepRetention(ctx, storage.BackendLocal, 10, false)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.True(t, f.blobs.Has(handle))

	f.clock.Advance(25 * time.Hour)
	report, err = f.app.SweepRetention(ctx, storage.BackendLocal, 10, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.False(t, f.blobs.Has(handle))
}

func TestMigrateAllCleanupAndPurge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		handle := f.blobs.Put([]byte(fmt.Sprintf("v%d", i)), "")
		_, err := f.app.Assets.Commit(ctx, asset.CommitInput{FolderPath: "m", Basename: fmt.Sprintf("f%d.txt", i), Ref: storage.LocalRef(handle)})
		require.NoError(t, err)
	}

	_, err := f.app.MigrateAll(ctx, 2, false, "ops")
	assert.ErrorIs(t, err, storage.ErrExternalNotConfigured)

	backend := storage.BackendExternal
	base := "https://cdn.example.com"
	_, err = f.app.Settings.Set(ctx, storage.SettingsUpdate{Backend: &backend, PublicBaseURL: &base}, "ops")
	require.NoError(t, err)

	report, err := f.app.MigrateAll(ctx, 2, true, "ops")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Migrated)
	assert.Empty(t, report.Errors)
	require.NotNil(t, report.Cleanup)
	assert.Equal(t, 3, report.Cleanup.Cleaned)

	stats, err := f.app.Migration.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.ExternalOnly)

	n, err := f.app.BackfillPublicURLs(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n, "migration stamps the public url already")

	_, err = f.app.Assets.Delete(ctx, "m", "f0.txt", "ops")
	require.NoError(t, err)
	sweep, err := f.app.SweepRetention(ctx, storage.BackendExternal, 10, true)
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.Processed)
	assert.Equal(t, 1, sweep.ObjectsPurged)
	assert.Empty(t, sweep.ObjectsKept)
}

func TestExpireIntents(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.app.Uploads.StartUpload(ctx, upload.StartInput{Basename: "late.txt"})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	n, err := f.app.ExpireIntents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
