// Package pathutil canonicalizes folder paths and allocates collision-free
// path segments.
package pathutil

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// MaxAllocationAttempts bounds the suffix probing loop in AllocateSegment.
const MaxAllocationAttempts = 100

const Separator = "/"

var ErrCollisionExhausted = errors.New("could not allocate a free path segment")

// Normalize trims whitespace and leading/trailing separators. Root and empty
// input both normalize to "".
func Normalize(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, Separator)
	return strings.TrimSpace(path)
}

// Join appends a segment to a normalized parent path.
func Join(parent, segment string) string {
	parent = Normalize(parent)
	segment = Normalize(segment)
	if parent == "" {
		return segment
	}
	if segment == "" {
		return parent
	}
	return parent + Separator + segment
}

// Base returns the last segment of the path.
func Base(path string) string {
	path = Normalize(path)
	if i := strings.LastIndex(path, Separator); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Parent returns everything up to the last segment, "" for top-level paths.
func Parent(path string) string {
	path = Normalize(path)
	if i := strings.LastIndex(path, Separator); i >= 0 {
		return path[:i]
	}
	return ""
}

// Depth is the number of segments in a normalized path; root has depth 0.
func Depth(path string) int {
	path = Normalize(path)
	if path == "" {
		return 0
	}
	return strings.Count(path, Separator) + 1
}

// ChildPrefix returns the lexicographic scan prefix for descendants of parent.
func ChildPrefix(parent string) string {
	parent = Normalize(parent)
	if parent == "" {
		return ""
	}
	return parent + Separator
}

// PrefixUpperBound is the exclusive upper bound for a [prefix, bound) range scan.
func PrefixUpperBound(prefix string) string {
	return prefix + "\uffff"
}

// IsWithin reports whether path equals root or is nested below it.
func IsWithin(path, root string) bool {
	path, root = Normalize(path), Normalize(root)
	if root == "" {
		return true
	}
	return path == root || strings.HasPrefix(path, root+Separator)
}

// HasSeparator reports whether a basename would escape its folder.
func HasSeparator(name string) bool {
	return strings.ContainsAny(name, "/\\")
}

// Slugify lowercases a label and replaces runs of anything that is not a
// letter or digit with a single dash.
func Slugify(label string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}

// AllocateSegment probes baseSlug, baseSlug-2, baseSlug-3, ... under parent
// until exists reports a free path.
func AllocateSegment(parent, baseSlug string, exists func(path string) (bool, error)) (string, error) {
	for attempt := 1; attempt <= MaxAllocationAttempts; attempt++ {
		segment := baseSlug
		if attempt > 1 {
			segment = fmt.Sprintf("%s-%d", baseSlug, attempt)
		}
		candidate := Join(parent, segment)
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q under %q", ErrCollisionExhausted, baseSlug, parent)
}
