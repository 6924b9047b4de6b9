package collision

import (
	"fmt"

	"github.com/redthing1/covtool/errs"
)

// Tracker records path-to-key assignments and detects two distinct module
// paths hashing to the same identity key.
//
// A Tracker is not safe for concurrent use; the canonicalizer builds one per
// merge, after the per-trace indexes are complete.
type Tracker struct {
	paths map[uint64]string // key → path
	order []string          // paths in first-seen order
}

// NewTracker creates a new collision tracker.
func NewTracker() *Tracker {
	return &Tracker{
		paths: make(map[uint64]string),
		order: make([]string, 0),
	}
}

// Track registers path under key.
//
// Returns:
//   - bool: true if the path was seen for the first time
//   - error: ErrHashCollision if key already belongs to a different path
func (t *Tracker) Track(path string, key uint64) (bool, error) {
	existing, ok := t.paths[key]
	if ok {
		if existing != path {
			return false, fmt.Errorf("%w: %q and %q share key 0x%016x", errs.ErrHashCollision, existing, path, key)
		}

		return false, nil
	}

	t.paths[key] = path
	t.order = append(t.order, path)

	return true, nil
}

// Path returns the path registered for key.
func (t *Tracker) Path(key uint64) (string, bool) {
	p, ok := t.paths[key]
	return p, ok
}

// Paths returns the tracked paths in first-seen order.
func (t *Tracker) Paths() []string {
	return t.order
}

// Count returns the number of distinct tracked paths.
func (t *Tracker) Count() int {
	return len(t.order)
}

// Reset clears all tracked paths, keeping allocated capacity.
func (t *Tracker) Reset() {
	clear(t.paths)
	t.order = t.order[:0]
}
