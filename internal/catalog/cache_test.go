package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	entries []Entry
	err     error
}

func (l *stubLoader) LoadEntries(context.Context) ([]Entry, error) {
	return l.entries, l.err
}

func TestCacheReloadSwapsSnapshot(t *testing.T) {
	loader := &stubLoader{entries: []Entry{
		{ID: 1, Title: "Dune", Author: "Frank Herbert", Genre: "Sci-Fi", Year: 1965},
		{ID: 2, Title: "Emma", Author: "Jane Austen", Genre: "Romance", Year: 1815},
	}}
	c := NewCache(loader)
	assert.Equal(t, 0, c.Len())

	before := c.Snapshot()
	require.NoError(t, c.Reload(context.Background()))
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 0, before.Len(), "old snapshot must not change")
	assert.Equal(t, "Dune", c.Lookup(1).Title)
}

func TestCacheReloadFailureKeepsPrevious(t *testing.T) {
	loader := &stubLoader{entries: []Entry{{ID: 7, Title: "Ulysses", Author: "James Joyce", Genre: "Fiction"}}}
	c := NewCache(loader)
	require.NoError(t, c.Reload(context.Background()))

	loader.err = errors.New("connection reset")
	loader.entries = nil
	err := c.Reload(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, loader.err)

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "Ulysses", c.Lookup(7).Title)
}

func TestCacheLookupUnknownReturnsSentinel(t *testing.T) {
	c := NewCache(&stubLoader{})

	e := c.Lookup(99)
	assert.Equal(t, int64(99), e.ID)
	assert.Equal(t, UnknownTitle, e.Title)
	assert.Equal(t, UnknownAuthor, e.Author)
	assert.Equal(t, UnknownGenre, e.Genre)
}

func TestCacheEntriesIsACopyInLoadOrder(t *testing.T) {
	c := NewCache(&stubLoader{entries: []Entry{{ID: 3, Title: "C"}, {ID: 1, Title: "A"}, {ID: 2, Title: "B"}}})
	require.NoError(t, c.Reload(context.Background()))

	entries := c.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []int64{3, 1, 2}, []int64{entries[0].ID, entries[1].ID, entries[2].ID})

	entries[0].Title = "mutated"
	assert.Equal(t, "C", c.Lookup(3).Title)

	var ids []int64
	for e := range c.Snapshot().All() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []int64{3, 1, 2}, ids)
}

func TestCacheInsertIsCopyOnWrite(t *testing.T) {
	c := NewCache(&stubLoader{entries: []Entry{{ID: 1, Title: "A"}}})
	require.NoError(t, c.Reload(context.Background()))
	old := c.Snapshot()

	c.insert(Entry{ID: 2, Title: "B"})
	c.insert(Entry{ID: 2, Title: "B again"})

	assert.Equal(t, 1, old.Len())
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "B", c.Lookup(2).Title)
}
