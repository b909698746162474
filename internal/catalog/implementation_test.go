package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrec/internal/apperr"
	"bookrec/internal/catalog"
	"bookrec/internal/store/storetest"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }

func newService(t *testing.T) catalog.Service {
	t.Helper()
	svc := catalog.NewService(storetest.Open(t), catalog.WithClock(fixedNow))
	require.NoError(t, svc.Reload(context.Background()))
	return svc
}

func TestAddBookInsertsAndRefreshesCache(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	res, err := svc.AddBook(ctx, catalog.AddBookRequest{
		Title: "  Rendezvous with Rama ", Author: "A. Clarke", Genre: "Sci-Fi", Year: 1973, TotalCopies: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, catalog.OutcomeAdded, res.Outcome)
	assert.False(t, res.Warning())
	require.NotNil(t, res.Book)
	assert.Equal(t, "Rendezvous with Rama", res.Book.Title)
	assert.Equal(t, 3, res.Book.AvailableCopies)

	assert.Equal(t, 1, svc.Cache().Len())
	assert.Equal(t, "A. Clarke", svc.Cache().Lookup(res.Book.ID).Author)

	book, err := svc.GetBook(ctx, res.Book.ID)
	require.NoError(t, err)
	assert.Equal(t, *res.Book, *book)
}

func TestAddBookDuplicateIsWarningWithoutInsert(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, err := svc.AddBook(ctx, catalog.AddBookRequest{
		Title: "Dune", Author: "Frank Herbert", Genre: "Sci-Fi", Year: 1965, TotalCopies: 2,
	})
	require.NoError(t, err)
	size := svc.Cache().Len()

	res, err := svc.AddBook(ctx, catalog.AddBookRequest{
		Title: "DUNE", Author: "frank herbert", Genre: "Classics", Year: 1965, TotalCopies: 5,
	})
	require.NoError(t, err)
	assert.True(t, res.Warning())
	assert.Equal(t, first.Book.ID, res.ExistingID)
	assert.Nil(t, res.Book)

	assert.Equal(t, size, svc.Cache().Len())
	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 1)
}

func TestAddBookDuplicateFoldsNonASCII(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, err := svc.AddBook(ctx, catalog.AddBookRequest{
		Title: "Émile", Author: "Jean-Jacques Rousseau", Genre: "Philosophy", Year: 1762, TotalCopies: 1,
	})
	require.NoError(t, err)
	require.Equal(t, catalog.OutcomeAdded, first.Outcome)

	for _, req := range []catalog.AddBookRequest{
		{Title: "Émile", Author: "Jean-Jacques Rousseau", Genre: "Philosophy", Year: 1762, TotalCopies: 1},
		{Title: "ÉMILE", Author: "JEAN-JACQUES ROUSSEAU", Genre: "Philosophy", Year: 1762, TotalCopies: 1},
		{Title: "émile", Author: "jean-jacques rousseau", Genre: "Philosophy", Year: 1762, TotalCopies: 1},
	} {
		res, err := svc.AddBook(ctx, req)
		require.NoError(t, err)
		assert.True(t, res.Warning(), req.Title)
		assert.Equal(t, first.Book.ID, res.ExistingID, req.Title)
	}

	assert.Equal(t, 1, svc.Cache().Len())
	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 1)
}

func TestAddBookValidation(t *testing.T) {
	svc := newService(t)

	tests := map[string]catalog.AddBookRequest{
		"blank title":   {Title: "  ", Author: "A", Genre: "G", Year: 2000, TotalCopies: 1},
		"blank author":  {Title: "T", Author: "", Genre: "G", Year: 2000, TotalCopies: 1},
		"blank genre":   {Title: "T", Author: "A", Genre: "\t", Year: 2000, TotalCopies: 1},
		"zero year":     {Title: "T", Author: "A", Genre: "G", Year: 0, TotalCopies: 1},
		"far future":    {Title: "T", Author: "A", Genre: "G", Year: 2030, TotalCopies: 1},
		"no copies":     {Title: "T", Author: "A", Genre: "G", Year: 2000, TotalCopies: 0},
		"negative copy": {Title: "T", Author: "A", Genre: "G", Year: 2000, TotalCopies: -2},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.AddBook(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, apperr.ReasonInvalidBook, apperr.ReasonOf(err))
		})
	}
	assert.Equal(t, 0, svc.Cache().Len())
}

func TestAddBookAcceptsYearUpToFiveAhead(t *testing.T) {
	svc := newService(t)

	res, err := svc.AddBook(context.Background(), catalog.AddBookRequest{
		Title: "Forthcoming", Author: "A", Genre: "G", Year: 2029, TotalCopies: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, catalog.OutcomeAdded, res.Outcome)
}

func TestGetBookUnknown(t *testing.T) {
	svc := newService(t)

	_, err := svc.GetBook(context.Background(), 12)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, apperr.ReasonUnknownBook, apperr.ReasonOf(err))
}

func TestReloadPicksUpExternalRows(t *testing.T) {
	s := storetest.Open(t)
	svc := catalog.NewService(s)
	id := storetest.AddBook(t, s, "Emma", "Jane Austen", "Romance", 1)
	assert.Equal(t, catalog.UnknownTitle, svc.Cache().Lookup(id).Title)

	require.NoError(t, svc.Reload(context.Background()))
	assert.Equal(t, "Emma", svc.Cache().Lookup(id).Title)
}

func TestReloadFailureReportsUnavailable(t *testing.T) {
	s := storetest.Open(t)
	svc := catalog.NewService(s)
	storetest.AddBook(t, s, "Emma", "Jane Austen", "Romance", 1)
	require.NoError(t, svc.Reload(context.Background()))

	storetest.MustExec(t, s, "DROP TABLE user_book_history")
	storetest.MustExec(t, s, "DROP TABLE book_issues")
	storetest.MustExec(t, s, "DROP TABLE books")

	err := svc.Reload(context.Background())
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
	assert.Equal(t, 1, svc.Cache().Len())
}
