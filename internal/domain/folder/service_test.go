package folder

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"assetvault/internal/domain/asset"
	"assetvault/internal/domain/changelog"
	"assetvault/internal/domain/retention"
	"assetvault/internal/domain/storage"
	"assetvault/internal/pkg/pathutil"
	"assetvault/internal/testutil"
)

type fixture struct {
	svc    *Service
	assets *asset.Service
	blobs  *testutil.MemoryBlobStore
	db     *gorm.DB
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t,
		&Folder{}, &asset.Asset{}, &asset.Version{}, &asset.Event{},
		&changelog.Entry{}, &storage.Settings{},
		&retention.LocalPendingDeletion{}, &retention.ExternalPendingDeletion{},
	)
	clk := testutil.FixedClock()
	blobs := testutil.NewMemoryBlobStore()
	resolver := storage.NewResolver(db, blobs, testutil.NewMemoryObjectService())
	changes := changelog.NewService(db, clk, nil)
	assets := asset.NewService(db, resolver, retention.NewService(db, blobs, clk, 0), changes, clk)
	return &fixture{
		svc:    NewService(db, assets, resolver, changes, clk),
		assets: assets,
		blobs:  blobs,
		db:     db,
	}
}

func (f *fixture) mkdir(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		_, err := f.svc.CreateByPath(context.Background(), p, "", "alice")
		require.NoError(t, err)
	}
}

func (f *fixture) commit(t *testing.T, folder, basename string) *asset.CommitResult {
	t.Helper()
	res, err := f.assets.Commit(context.Background(), asset.CommitInput{
		FolderPath: folder,
		Basename:   basename,
		Ref:        storage.LocalRef(f.blobs.Put([]byte(basename), "text/plain")),
		Actor:      "alice",
	})
	require.NoError(t, err)
	return res
}

func paths(folders []Folder) []string {
	out := make([]string, len(folders))
	for i, f := range folders {
		out[i] = f.Path
	}
	return out
}

func TestCreateByPathTwiceConflicts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.svc.CreateByPath(ctx, "/docs/guides/", "", "alice")
	require.NoError(t, err)
	assert.Equal(t, "docs/guides", created.Path)
	assert.Equal(t, "guides", created.Name)

	_, err = f.svc.CreateByPath(ctx, "docs/guides", "Other", "alice")
	assert.ErrorIs(t, err, ErrFolderExists)

	_, err = f.svc.CreateByPath(ctx, " / ", "", "alice")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestCreateByNameCollisionHandling(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.CreateByName(ctx, "docs", "Release Notes", "alice")
	require.NoError(t, err)
	assert.Equal(t, "docs/release-notes", first.Path)

	_, err = f.svc.CreateByName(ctx, "docs", "Release Notes", "alice")
	assert.ErrorIs(t, err, ErrFolderExists)

	second, err := f.svc.CreateByName(ctx, "docs", "release notes!", "alice")
	require.NoError(t, err)
	assert.Equal(t, "docs/release-notes-2", second.Path)
	assert.Equal(t, "release notes!", second.Name)

	third, err := f.svc.CreateByName(ctx, "docs", "Release  Notes", "alice")
	require.NoError(t, err)
	assert.Equal(t, "docs/release-notes-3", third.Path)
}

func TestCreateByNameExhaustsSuffixes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.CreateByName(ctx, "", "x", "alice")
	require.NoError(t, err)
	for i := 2; i <= pathutil.MaxAllocationAttempts; i++ {
		_, err := f.svc.CreateByPath(ctx, "x-"+strconv.Itoa(i), "", "alice")
		require.NoError(t, err)
	}
	_, err = f.svc.CreateByName(ctx, "", "X", "alice")
	assert.ErrorIs(t, err, pathutil.ErrCollisionExhausted)
}

func TestListReturnsDirectChildrenOnly(t *testing.T) {
	f := setup(t)
	f.mkdir(t, "a", "a/b", "a/b/c", "a/b/c/d", "a/b/e", "a/bz", "b")

	got, err := f.svc.List(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b/c", "a/b/e"}, paths(got))

	root, err := f.svc.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, paths(root))

	all, err := f.svc.ListAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a/b", "a/b/c", "a/b/c/d", "a/b/e", "a/bz", "b"}, paths(all))
}

func TestListWithAssetsResolvesPublishedURLs(t *testing.T) {
	f := setup(t)
	f.mkdir(t, "site", "site/img", "site/css")
	logo := f.commit(t, "site/img", "logo.png")
	_, err := f.assets.CreateAsset(context.Background(), "site/img", "empty.png", "alice")
	require.NoError(t, err)

	out, err := f.svc.ListWithAssets(context.Background(), "site")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "site/css", out[0].Folder.Path)
	assert.Empty(t, out[0].Assets)

	img := out[1]
	require.Len(t, img.Assets, 2)
	assert.Equal(t, "empty.png", img.Assets[0].Asset.Basename)
	assert.Nil(t, img.Assets[0].Published)
	assert.Equal(t, "logo.png", img.Assets[1].Asset.Basename)
	assert.Equal(t, "memory://blob/"+logo.Version.LocalHandle, img.Assets[1].URL)
}

func TestUpdateRelocatesSubtree(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.mkdir(t, "a", "a/b", "a/b/c", "x")
	f.commit(t, "a/b", "one.txt")
	f.commit(t, "a/b/c", "two.txt")

	newPath := "x/b"
	name := "Moved"
	updated, err := f.svc.Update(ctx, "a/b", UpdateInput{Name: &name, NewPath: &newPath}, "bob")
	require.NoError(t, err)
	assert.Equal(t, "x/b", updated.Path)
	assert.Equal(t, "Moved", updated.Name)

	all, err := f.svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "x", "x/b", "x/b/c"}, paths(all))

	_, err = f.assets.GetAsset(ctx, "x/b", "one.txt")
	assert.NoError(t, err)
	_, err = f.assets.GetAsset(ctx, "x/b/c", "two.txt")
	assert.NoError(t, err)
}

func TestUpdateErrors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.mkdir(t, "a", "a/b", "c")

	target := "c"
	_, err := f.svc.Update(ctx, "a", UpdateInput{NewPath: &target}, "bob")
	assert.ErrorIs(t, err, ErrFolderExists)

	inside := "a/b/z"
	_, err = f.svc.Update(ctx, "a", UpdateInput{NewPath: &inside}, "bob")
	assert.ErrorIs(t, err, ErrMoveIntoSelf)

	_, err = f.svc.Update(ctx, "missing", UpdateInput{NewPath: &inside}, "bob")
	assert.ErrorIs(t, err, ErrFolderNotFound)
}

func TestDeleteCascadesByPrefix(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.mkdir(t, "a", "a/b", "a/b/c", "ab")
	f.commit(t, "a", "root.txt")
	f.commit(t, "a/b/c", "deep.txt")
	f.commit(t, "ab", "keep.txt")

	res, err := f.svc.Delete(ctx, "a", "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, res.DeletedFolders)
	assert.Equal(t, 2, res.DeletedAssets)

	all, err := f.svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ab"}, paths(all))

	_, err = f.assets.GetAsset(ctx, "ab", "keep.txt")
	assert.NoError(t, err)

	var pending int64
	require.NoError(t, f.db.Model(&retention.LocalPendingDeletion{}).Count(&pending).Error)
	assert.Equal(t, int64(2), pending)

	_, err = f.svc.Delete(ctx, "a", "bob")
	assert.ErrorIs(t, err, ErrFolderNotFound)
}
