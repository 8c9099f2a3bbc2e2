package store

import (
	"context"
	"errors"
	"strings"

	json "github.com/goccy/go-json"
	"golang.org/x/xerrors"
)

var (
	ErrUnsupportedPath = errors.New("path not supported by this backend")
	ErrInvalidValue    = errors.New("value cannot be stored at this path")
)

// Store is the realtime document store the application runs against.
// Writes are last-write-wins at the given path; there are no transactions
// spanning several paths.
type Store interface {
	// Read returns the value at path. A missing value is a snapshot for
	// which Exists reports false, not an error.
	Read(ctx context.Context, path string) (Snapshot, error)
	// Write replaces the value at path. A nil value deletes it.
	Write(ctx context.Context, path string, value any) error
	// Push stores value under a new store-assigned key below path.
	Push(ctx context.Context, path string, value any) (string, error)
	// Subscribe calls fn with the full value at path once with the current
	// value and then on every change. The returned function unsubscribes;
	// cancelling ctx has the same effect.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (func(), error)
}

// Snapshot is the JSON encoded value found at a path.
type Snapshot struct {
	Path string
	raw  []byte
}

// NewSnapshot encodes value as the content of path.
func NewSnapshot(path string, value any) (Snapshot, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Snapshot{}, xerrors.Errorf("encode snapshot %s: %w", path, err)
	}
	return Snapshot{Path: path, raw: raw}, nil
}

func (s Snapshot) Exists() bool {
	return len(s.raw) > 0 && string(s.raw) != "null"
}

// Unmarshal decodes the snapshot into dest. Decoding an absent value leaves
// dest untouched.
func (s Snapshot) Unmarshal(dest any) error {
	if !s.Exists() {
		return nil
	}
	if err := json.Unmarshal(s.raw, dest); err != nil {
		return xerrors.Errorf("decode snapshot %s: %w", s.Path, err)
	}
	return nil
}

// Value returns the decoded generic value, nil when absent.
func (s Snapshot) Value() any {
	var v any
	if err := s.Unmarshal(&v); err != nil {
		return nil
	}
	return v
}

func (s Snapshot) Raw() []byte {
	return s.raw
}

// Equal reports whether both snapshots carry the same encoded value.
func (s Snapshot) Equal(other Snapshot) bool {
	return string(s.raw) == string(other.raw)
}

// SplitPath turns "venues/abc/" into ["venues", "abc"].
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func JoinPath(segments ...string) string {
	return strings.Join(SplitPath(strings.Join(segments, "/")), "/")
}

// normalize converts any encodable value into the generic JSON shape
// (maps, slices, float64, string, bool, nil) and prunes what the realtime
// database does not keep: nulls, empty objects and empty arrays.
func normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, xerrors.Errorf("encode value: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, xerrors.Errorf("decode value: %w", err)
	}
	return prune(generic), nil
}

func prune(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if c := prune(child); c == nil {
				delete(t, k)
			} else {
				t[k] = c
			}
		}
		if len(t) == 0 {
			return nil
		}
		return t
	case []any:
		empty := true
		for i, child := range t {
			t[i] = prune(child)
			if t[i] != nil {
				empty = false
			}
		}
		if empty {
			return nil
		}
		return t
	default:
		return v
	}
}

// related reports whether a change at one path is visible at the other.
func related(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
