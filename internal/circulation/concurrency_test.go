package circulation_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrec/internal/apperr"
	"bookrec/internal/store/storetest"
)

// Many students race for the last copies: exactly as many issues succeed as
// there were copies, and the count never leaves [0, total].
func TestConcurrentIssuesNeverOverbook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const copies, students = 3, 12

	book := storetest.AddBook(t, f.store, "Dune", "Frank Herbert", "Sci-Fi", copies)
	for i := range students {
		storetest.AddUser(t, f.store, fmt.Sprintf("student%02d", i), "student")
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		errs []error
	)
	for i := range students {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := f.svc.IssueBook(ctx, admin, name, book)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ok++
		}(fmt.Sprintf("student%02d", i))
	}
	wg.Wait()

	assert.Equal(t, copies, ok)
	require.Len(t, errs, students-copies)
	for _, err := range errs {
		assert.Equal(t, apperr.ReasonNoCopiesAvailable, apperr.ReasonOf(err), err)
	}
	assert.Equal(t, 0, storetest.Available(t, f.store, book))
	assert.Equal(t, copies, storetest.Count(t, f.store, "book_issues", "book_id = ? AND status = 'issued'", book))
	assert.Equal(t, copies, storetest.Count(t, f.store, "user_book_history", "book_id = ?", book))
}

func TestConcurrentDuplicateIssueKeepsOneLoan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	storetest.AddUser(t, f.store, "alice", "student")
	book := storetest.AddBook(t, f.store, "Emma", "Jane Austen", "Romance", 5)

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.IssueBook(ctx, admin, "alice", book)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperr.ReasonAlreadyIssued, apperr.ReasonOf(err), err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 4, storetest.Available(t, f.store, book))
}
