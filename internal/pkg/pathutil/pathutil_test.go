package pathutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":             "",
		"/":            "",
		"  /docs/ ":    "docs",
		"/a/b/c/":      "a/b/c",
		"a/b":          "a/b",
		"///nested//": "nested",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestDepthAndParent(t *testing.T) {
	assert.Equal(t, 0, Depth(""))
	assert.Equal(t, 1, Depth("docs"))
	assert.Equal(t, 3, Depth("a/b/c"))
	assert.Equal(t, "a/b", Parent("a/b/c"))
	assert.Equal(t, "", Parent("docs"))
	assert.Equal(t, "c", Base("a/b/c"))
}

func TestIsWithin(t *testing.T) {
	assert.True(t, IsWithin("a/b", "a"))
	assert.True(t, IsWithin("a", "a"))
	assert.False(t, IsWithin("ab", "a"))
	assert.True(t, IsWithin("anything", ""))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "quarterly-reports-2024", Slugify("  Quarterly Reports: 2024! "))
	assert.Equal(t, "untitled", Slugify("***"))
	assert.Equal(t, "café", Slugify("Café"))
}

func TestAllocateSegmentProbesSuffixes(t *testing.T) {
	taken := map[string]bool{"docs/guide": true, "docs/guide-2": true}
	path, err := AllocateSegment("docs", "guide", func(p string) (bool, error) {
		return taken[p], nil
	})
	require.NoError(t, err)
	assert.Equal(t, "docs/guide-3", path)
}

func TestAllocateSegmentGivesUpAfterCeiling(t *testing.T) {
	calls := 0
	_, err := AllocateSegment("", "x", func(string) (bool, error) {
		calls++
		return true, nil
	})
	assert.True(t, errors.Is(err, ErrCollisionExhausted))
	assert.Equal(t, MaxAllocationAttempts, calls)
}

func TestAllocateSegmentPropagatesLookupError(t *testing.T) {
	boom := errors.New("boom")
	_, err := AllocateSegment("", "x", func(string) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}
