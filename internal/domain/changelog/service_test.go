package changelog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"assetvault/internal/pkg/apperr"
	"assetvault/internal/testutil"
)

func setupTestService(t *testing.T) (*Service, *gorm.DB, *testutil.StubClock) {
	t.Helper()
	db := testutil.OpenDB(t, &Entry{})
	clk := testutil.FixedClock()
	return NewService(db, clk, nil), db, clk
}

func appendEntry(t *testing.T, s *Service, db *gorm.DB, e Entry) Entry {
	t.Helper()
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return s.Append(tx, &e)
	}))
	return e
}

func TestListSinceStartReturnsCreationOrder(t *testing.T) {
	s, db, clk := setupTestService(t)
	var want []string
	for i := 0; i < 5; i++ {
		e := appendEntry(t, s, db, Entry{ChangeType: ChangeFolderCreated, FolderPath: "docs"})
		want = append(want, e.ID)
		clk.Advance(time.Millisecond)
	}

	page, err := s.ListSince(context.Background(), Start, 0)
	require.NoError(t, err)
	var got []string
	for _, e := range page.Entries {
		got = append(got, e.ID)
	}
	assert.Equal(t, want, got)
	assert.Equal(t, want[4], page.NextCursor.ID)
}

func TestListSinceBreaksTimestampTiesByID(t *testing.T) {
	s, db, _ := setupTestService(t)
	ctx := context.Background()
	const ts = int64(1700000000000)
	appendEntry(t, s, db, Entry{ID: "b", ChangeType: ChangeAssetCreated, FolderPath: "x", CreatedAt: ts})
	appendEntry(t, s, db, Entry{ID: "a", ChangeType: ChangeAssetCreated, FolderPath: "x", CreatedAt: ts})
	appendEntry(t, s, db, Entry{ID: "c", ChangeType: ChangeAssetCreated, FolderPath: "x", CreatedAt: ts})
	appendEntry(t, s, db, Entry{ID: "0", ChangeType: ChangeAssetCreated, FolderPath: "x", CreatedAt: ts + 1})

	seen := map[string]int{}
	var order []string
	cursor := Start
	for i := 0; i < 10; i++ {
		page, err := s.ListSince(ctx, cursor, 1)
		require.NoError(t, err)
		if len(page.Entries) == 0 {
			break
		}
		e := page.Entries[0]
		key := e.Cursor().String()
		seen[key]++
		order = append(order, key)
		assert.Equal(t, Cursor{CreatedAt: e.CreatedAt, ID: e.ID}, page.NextCursor)
		cursor = page.NextCursor
	}

	assert.Equal(t, []string{"1700000000000:a", "1700000000000:b", "1700000000000:c", "1700000000001:0"}, order)
	for k, n := range seen {
		assert.Equal(t, 1, n, "entry %s returned more than once", k)
	}
}

func TestListSinceEmptyPageKeepsCursor(t *testing.T) {
	s, _, _ := setupTestService(t)
	cursor := Cursor{CreatedAt: 42, ID: "zzz"}
	page, err := s.ListSince(context.Background(), cursor, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.Equal(t, cursor, page.NextCursor)
}

func TestListForFolderFilters(t *testing.T) {
	s, db, clk := setupTestService(t)
	appendEntry(t, s, db, Entry{ChangeType: ChangeFolderCreated, FolderPath: "a"})
	clk.Advance(time.Millisecond)
	appendEntry(t, s, db, Entry{ChangeType: ChangeFolderCreated, FolderPath: "b"})
	clk.Advance(time.Millisecond)
	appendEntry(t, s, db, Entry{ChangeType: ChangeAssetCreated, FolderPath: "a", Basename: "x.txt"})

	page, err := s.ListForFolder(context.Background(), "a", Start, 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "x.txt", page.Entries[1].Basename)
}

func TestListForFolderNormalizesPath(t *testing.T) {
	s, db, clk := setupTestService(t)
	appendEntry(t, s, db, Entry{ChangeType: ChangeFolderCreated, FolderPath: "docs"})
	clk.Advance(time.Millisecond)
	appendEntry(t, s, db, Entry{ChangeType: ChangeAssetCreated, FolderPath: "docs", Basename: "a.txt"})

	for _, folder := range []string{"docs/", "/docs", " docs "} {
		page, err := s.ListForFolder(context.Background(), folder, Start, 10)
		require.NoError(t, err)
		assert.Len(t, page.Entries, 2, "folder %q", folder)
	}
}

func TestParseCursor(t *testing.T) {
	c, err := ParseCursor("")
	require.NoError(t, err)
	assert.Equal(t, Start, c)

	c, err = ParseCursor("0:")
	require.NoError(t, err)
	assert.Equal(t, Start, c)

	c, err = ParseCursor("123:abc")
	require.NoError(t, err)
	assert.Equal(t, Cursor{CreatedAt: 123, ID: "abc"}, c)
	assert.Equal(t, "123:abc", c.String())

	_, err = ParseCursor("nope")
	assert.ErrorIs(t, err, ErrInvalidCursor)
	_, err = ParseCursor("-5:x")
	assert.ErrorIs(t, err, ErrInvalidCursor)
	assert.ErrorIs(t, err, apperr.ErrValidation, "bad cursors surface as 400")
}

func TestLocalNotifierCoalescesSignals(t *testing.T) {
	n := NewLocalNotifier()
	ch, unsubscribe := n.Subscribe()
	defer unsubscribe()

	require.NoError(t, n.Notify(context.Background()))
	require.NoError(t, n.Notify(context.Background()))

	select {
	case <-ch:
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-ch:
		t.Fatal("signals should coalesce")
	default:
	}

	unsubscribe()
	require.NoError(t, n.Notify(context.Background()))
	select {
	case <-ch:
		t.Fatal("unsubscribed channel must not receive")
	default:
	}
}
