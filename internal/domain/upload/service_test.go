package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"assetvault/internal/domain/asset"
	"assetvault/internal/domain/changelog"
	"assetvault/internal/domain/retention"
	"assetvault/internal/domain/storage"
	"assetvault/internal/testutil"
)

type fixture struct {
	svc      *Service
	assets   *asset.Service
	settings *storage.SettingsRepository
	blobs    *testutil.MemoryBlobStore
	objects  *testutil.MemoryObjectService
	clock    *testutil.StubClock
	db       *gorm.DB
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t,
		&Intent{}, &asset.Asset{}, &asset.Version{}, &asset.Event{},
		&changelog.Entry{}, &storage.Settings{},
		&retention.LocalPendingDeletion{}, &retention.ExternalPendingDeletion{},
	)
	clk := testutil.FixedClock()
	blobs := testutil.NewMemoryBlobStore()
	objects := testutil.NewMemoryObjectService()
	resolver := storage.NewResolver(db, blobs, objects)
	changes := changelog.NewService(db, clk, nil)
	assets := asset.NewService(db, resolver, retention.NewService(db, blobs, clk, 0), changes, clk)
	return &fixture{
		svc:      NewService(db, resolver, assets, changes, clk, 0),
		assets:   assets,
		settings: storage.NewSettingsRepository(db, clk),
		blobs:    blobs,
		objects:  objects,
		clock:    clk,
		db:       db,
	}
}

func (f *fixture) useExternal(t *testing.T, baseURL, prefix string) {
	t.Helper()
	backend := storage.BackendExternal
	_, err := f.settings.Set(context.Background(), storage.SettingsUpdate{
		Backend:       &backend,
		PublicBaseURL: &baseURL,
		KeyPrefix:     &prefix,
	}, "admin")
	require.NoError(t, err)
}

func uploadResult(handle string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"storageId":%q}`, handle))
}

func TestLocalUploadRoundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	start, err := f.svc.StartUpload(ctx, StartInput{FolderPath: "docs", Basename: "readme.md", Label: "first", Actor: "alice"})
	require.NoError(t, err)
	assert.Equal(t, storage.BackendLocal, start.Backend)
	assert.NotEmpty(t, start.UploadURL)
	assert.Empty(t, start.ObjectKey)
	assert.Equal(t, f.clock.Now().Add(DefaultIntentTTL), start.ExpiresAt)

	handle := f.blobs.Put([]byte("# hello"), "text/markdown")
	res, err := f.svc.FinishUpload(ctx, FinishInput{IntentID: start.IntentID, UploadResult: uploadResult(handle), Size: 999, Actor: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Version)

	v, err := f.assets.GetVersion(ctx, res.VersionID)
	require.NoError(t, err)
	assert.Equal(t, handle, v.LocalHandle)
	assert.Equal(t, int64(7), v.Size)
	assert.Equal(t, "text/markdown", v.ContentType)
	assert.NotEmpty(t, v.Checksum)
	assert.Equal(t, "first", v.Label)

	intent, err := f.svc.Get(ctx, start.IntentID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, intent.Status)
	assert.Equal(t, res.VersionID, intent.VersionID)
}

func TestExternalUploadDerivesKey(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.useExternal(t, "https://cdn.example.com/", "tenant-a")

	start, err := f.svc.StartUpload(ctx, StartInput{FolderPath: "img", Basename: "logo.png", Filename: "Logo Final.png", Actor: "alice"})
	require.NoError(t, err)
	assert.Equal(t, storage.BackendExternal, start.Backend)
	assert.Equal(t, "tenant-a/"+start.IntentID+"/Logo Final.png", start.ObjectKey)
	assert.Equal(t, "https://objects.test/upload/"+start.ObjectKey, start.UploadURL)

	res, err := f.svc.FinishUpload(ctx, FinishInput{IntentID: start.IntentID, Size: 2048, ContentType: "image/png", Actor: "alice"})
	require.NoError(t, err)

	v, err := f.assets.GetVersion(ctx, res.VersionID)
	require.NoError(t, err)
	assert.Equal(t, start.ObjectKey, v.ExternalKey)
	assert.Equal(t, "https://cdn.example.com/tenant-a/"+start.IntentID+"/Logo%20Final.png", v.ExternalURL)
	assert.Empty(t, v.LocalHandle)
	assert.Equal(t, int64(2048), v.Size)
	assert.Equal(t, "image/png", v.ContentType)
	assert.Empty(t, v.Checksum)
}

func TestExternalKeyFallsBackToBasename(t *testing.T) {
	f := setup(t)
	f.useExternal(t, "https://cdn.example.com", "")

	start, err := f.svc.StartUpload(context.Background(), StartInput{Basename: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, start.IntentID+"/a.txt", start.ObjectKey)
}

func TestStartUploadRejectsSeparatorBeforeAnyRecord(t *testing.T) {
	f := setup(t)
	_, err := f.svc.StartUpload(context.Background(), StartInput{FolderPath: "docs", Basename: "a/b.txt"})
	assert.ErrorIs(t, err, asset.ErrInvalidBasename)

	var n int64
	require.NoError(t, f.db.Model(&Intent{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestFinishTwiceFailsAlreadyFinalized(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	start, err := f.svc.StartUpload(ctx, StartInput{Basename: "a.txt"})
	require.NoError(t, err)
	handle := f.blobs.Put([]byte("a"), "")

	_, err = f.svc.FinishUpload(ctx, FinishInput{IntentID: start.IntentID, UploadResult: uploadResult(handle)})
	require.NoError(t, err)

	_, err = f.svc.FinishUpload(ctx, FinishInput{IntentID: start.IntentID, UploadResult: uploadResult(handle)})
	assert.ErrorIs(t, err, ErrIntentFinalized)
	assert.ErrorIs(t, err, ErrIntentNotCreated)
	assert.Contains(t, err.Error(), "already finalized")
}

func TestFinishExpiredMarksIntent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	start, err := f.svc.StartUpload(ctx, StartInput{Basename: "a.txt"})
	require.NoError(t, err)

	f.clock.Advance(DefaultIntentTTL + time.Second)
	_, err = f.svc.FinishUpload(ctx, FinishInput{IntentID: start.IntentID, UploadResult: uploadResult(f.blobs.Put([]byte("a"), ""))})
	assert.ErrorIs(t, err, ErrIntentExpired)

	intent, err := f.svc.Get(ctx, start.IntentID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, intent.Status)

	_, err = f.svc.FinishUpload(ctx, FinishInput{IntentID: start.IntentID})
	assert.ErrorIs(t, err, ErrIntentNotCreated)
}

func TestFinishErrors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.FinishUpload(ctx, FinishInput{IntentID: "missing"})
	assert.ErrorIs(t, err, ErrIntentNotFound)

	start, err := f.svc.StartUpload(ctx, StartInput{Basename: "a.txt"})
	require.NoError(t, err)

	_, err = f.svc.FinishUpload(ctx, FinishInput{IntentID: start.IntentID})
	assert.ErrorIs(t, err, ErrMissingStorageID)

	_, err = f.svc.FinishUpload(ctx, FinishInput{IntentID: start.IntentID, UploadResult: uploadResult("nope")})
	assert.ErrorIs(t, err, ErrBlobNotFound)

	intent, err := f.svc.Get(ctx, start.IntentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, intent.Status)
}

func TestSettingsChangeOnlyAffectsLaterUploads(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	local, err := f.svc.StartUpload(ctx, StartInput{Basename: "a.txt"})
	require.NoError(t, err)
	f.useExternal(t, "https://cdn.example.com", "")
	external, err := f.svc.StartUpload(ctx, StartInput{Basename: "b.txt"})
	require.NoError(t, err)

	res, err := f.svc.FinishUpload(ctx, FinishInput{IntentID: local.IntentID, UploadResult: uploadResult(f.blobs.Put([]byte("a"), ""))})
	require.NoError(t, err)
	v, err := f.assets.GetVersion(ctx, res.VersionID)
	require.NoError(t, err)
	assert.Equal(t, storage.BackendLocal, v.Ref().Backend())
	assert.Equal(t, storage.BackendExternal, external.Backend)
}

func TestExpireOverdueSweepsOnlyOpenIntents(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	stale, err := f.svc.StartUpload(ctx, StartInput{Basename: "stale.txt"})
	require.NoError(t, err)
	done, err := f.svc.StartUpload(ctx, StartInput{Basename: "done.txt"})
	require.NoError(t, err)
	_, err = f.svc.FinishUpload(ctx, FinishInput{IntentID: done.IntentID, UploadResult: uploadResult(f.blobs.Put([]byte("d"), ""))})
	require.NoError(t, err)

	n, err := f.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(DefaultIntentTTL)
	n, err = f.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	intent, err := f.svc.Get(ctx, stale.IntentID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, intent.Status)
	intent, err = f.svc.Get(ctx, done.IntentID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, intent.Status)
}
