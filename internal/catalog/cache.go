// internal/catalog/cache.go
package catalog

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"
)

const (
	UnknownTitle  = "Unknown Title"
	UnknownAuthor = "Unknown Author"
	UnknownGenre  = "Unknown Genre"
)

// Loader fetches every book row for a full cache rebuild.
type Loader interface {
	LoadEntries(ctx context.Context) ([]Entry, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) ([]Entry, error)

func (f LoaderFunc) LoadEntries(ctx context.Context) ([]Entry, error) {
	return f(ctx)
}

// Snapshot is an immutable view of the catalog. Entries keep load order.
type Snapshot struct {
	entries  []Entry
	index    map[int64]int
	loadedAt time.Time
}

func newSnapshot(entries []Entry) *Snapshot {
	snap := &Snapshot{
		entries:  entries,
		index:    make(map[int64]int, len(entries)),
		loadedAt: time.Now().UTC(),
	}
	for i, e := range entries {
		snap.index[e.ID] = i
	}
	return snap
}

func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Get returns the entry for id and whether it exists.
func (s *Snapshot) Get(id int64) (Entry, bool) {
	i, ok := s.index[id]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// All yields entries in load order.
func (s *Snapshot) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range s.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Lookup is Get with the "Unknown ..." sentinel entry for missing ids.
func (s *Snapshot) Lookup(id int64) Entry {
	if e, ok := s.Get(id); ok {
		return e
	}
	return Entry{ID: id, Title: UnknownTitle, Author: UnknownAuthor, Genre: UnknownGenre}
}

func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// Cache owns the current Snapshot. Readers never see a partially built one;
// writers replace it whole.
type Cache struct {
	loader  Loader
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
}

func NewCache(loader Loader) *Cache {
	c := &Cache{loader: loader}
	c.current.Store(newSnapshot(nil))
	return c
}

// Reload rebuilds the snapshot from the loader. On failure the previous
// snapshot stays in place.
func (c *Cache) Reload(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.loader.LoadEntries(ctx)
	if err != nil {
		return fmt.Errorf("reload catalog cache: %w", err)
	}
	c.current.Store(newSnapshot(entries))
	return nil
}

// insert appends one entry copy-on-write. Used only after a successful
// insertion whose follow-up reload failed.
func (c *Cache) insert(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.current.Load()
	if _, ok := old.Get(e.ID); ok {
		return
	}
	entries := make([]Entry, 0, old.Len()+1)
	entries = append(entries, old.entries...)
	entries = append(entries, e)
	c.current.Store(newSnapshot(entries))
}

// Snapshot returns the current immutable view.
func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

// Lookup never fails: unknown ids map to the "Unknown ..." sentinel entry.
func (c *Cache) Lookup(id int64) Entry {
	return c.Snapshot().Lookup(id)
}

// Entries returns a copy of every entry in load order.
func (c *Cache) Entries() []Entry {
	snap := c.Snapshot()
	out := make([]Entry, len(snap.entries))
	copy(out, snap.entries)
	return out
}

func (c *Cache) Len() int {
	return c.Snapshot().Len()
}
