// internal/catalog/implementation.go
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"bookrec/internal/apperr"
	"bookrec/internal/logging"
	"bookrec/internal/store"
	"bookrec/internal/validation"
)

// maxYearAhead bounds publication years announced ahead of release.
const maxYearAhead = 5

var bookColumns = []interface{}{
	"book_id", "title", "author", "genre", "publication", "total_copies", "available_copies",
}

// service implements the Service interface.
type service struct {
	store  *store.Store
	cache  *Cache
	now    func() time.Time
	tracer trace.Tracer
	added  metric.Int64Counter
}

// Option customizes the catalog service.
type Option func(*service)

// WithClock replaces time.Now, for the publication year check.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new catalog service. The cache starts empty; call
// Reload once the store is migrated.
func NewService(st *store.Store, opts ...Option) Service {
	s := &service{
		store:  st,
		now:    time.Now,
		tracer: otel.Tracer("bookrec/catalog"),
	}
	s.cache = NewCache(LoaderFunc(s.loadEntries))
	for _, opt := range opts {
		opt(s)
	}

	s.added, _ = otel.Meter("bookrec/catalog").Int64Counter("bookrec.catalog.books_added",
		metric.WithDescription("Books inserted into the catalog"))
	return s
}

func (s *service) Cache() *Cache {
	return s.cache
}

// Reload rebuilds the catalog cache from the books table.
func (s *service) Reload(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "catalog.reload")
	defer span.End()

	if err := s.cache.Reload(ctx); err != nil {
		span.RecordError(err)
		return apperr.Store(err, "catalog reload")
	}

	span.SetAttributes(attribute.Int("catalog.size", s.cache.Len()))
	logging.Ctx(ctx).Debug().Int("books", s.cache.Len()).Msg("catalog cache reloaded")
	return nil
}

func (s *service) loadEntries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	ds := s.store.From("books").
		Select("book_id", "title", "author", "genre", "publication").
		Order(goqu.C("book_id").Asc())
	if err := store.Select(ctx, s.store.DB(), &entries, ds); err != nil {
		return nil, fmt.Errorf("load books: %w", err)
	}
	return entries, nil
}

// AddBook validates and inserts a new title. A case-insensitive title and
// author match is reported as a duplicate and nothing is written.
func (s *service) AddBook(ctx context.Context, req AddBookRequest) (*AddResult, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.add_book")
	defer span.End()

	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	req.Genre = strings.TrimSpace(req.Genre)

	if err := validation.Struct(&req); err != nil {
		return nil, apperr.Validation(apperr.ReasonInvalidBook, "invalid book: %v", err)
	}
	if maxYear := s.now().Year() + maxYearAhead; req.Year > maxYear {
		return nil, apperr.Validation(apperr.ReasonInvalidBook, "invalid book: year must be at most %d", maxYear)
	}

	existingID, found, err := s.findDuplicate(ctx, req.Title, req.Author)
	if err != nil {
		return nil, apperr.Store(err, "duplicate check")
	}
	if found {
		span.SetAttributes(attribute.Bool("catalog.duplicate", true))
		return &AddResult{
			Outcome:    OutcomeDuplicate,
			ExistingID: existingID,
			Message:    fmt.Sprintf("a book with the same title and author already exists (ID: %d), addition skipped", existingID),
		}, nil
	}

	book := &Book{
		Title:           req.Title,
		Author:          req.Author,
		Genre:           req.Genre,
		Year:            req.Year,
		TotalCopies:     req.TotalCopies,
		AvailableCopies: req.TotalCopies,
	}
	ds := s.store.Insert("books").Rows(goqu.Record{
		"title":            book.Title,
		"author":           book.Author,
		"genre":            book.Genre,
		"publication":      book.Year,
		"total_copies":     book.TotalCopies,
		"available_copies": book.AvailableCopies,
	})
	book.ID, err = s.store.InsertID(ctx, s.store.DB(), ds, "book_id")
	if err != nil {
		return nil, apperr.Store(err, "insert book")
	}
	s.added.Add(ctx, 1)
	span.SetAttributes(attribute.Int64("book.id", book.ID))

	if err := s.cache.Reload(ctx); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("book_id", book.ID).Msg("catalog reload after insert failed, patching cache")
		s.cache.insert(Entry{ID: book.ID, Title: book.Title, Author: book.Author, Genre: book.Genre, Year: book.Year})
	}

	logging.Ctx(ctx).Info().Int64("book_id", book.ID).Str("title", book.Title).Msg("book added")
	return &AddResult{
		Outcome: OutcomeAdded,
		Book:    book,
		Message: fmt.Sprintf("book '%s' added successfully", book.Title),
	}, nil
}

// findDuplicate folds case in Go on both sides; SQLite's LOWER only folds ASCII.
func (s *service) findDuplicate(ctx context.Context, title, author string) (int64, bool, error) {
	var rows []struct {
		ID     int64  `db:"book_id"`
		Title  string `db:"title"`
		Author string `db:"author"`
	}
	ds := s.store.From("books").
		Select("book_id", "title", "author").
		Order(goqu.C("book_id").Asc())
	if err := store.Select(ctx, s.store.DB(), &rows, ds); err != nil {
		return 0, false, err
	}

	for _, row := range rows {
		if strings.EqualFold(strings.TrimSpace(row.Title), title) &&
			strings.EqualFold(strings.TrimSpace(row.Author), author) {
			return row.ID, true, nil
		}
	}
	return 0, false, nil
}

// GetBook reads a book straight from the store, copy counts included.
func (s *service) GetBook(ctx context.Context, id int64) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.get_book", trace.WithAttributes(attribute.Int64("book.id", id)))
	defer span.End()

	book := &Book{}
	ds := s.store.From("books").Select(bookColumns...).Where(goqu.C("book_id").Eq(id))
	err := store.Get(ctx, s.store.DB(), book, ds)
	if store.IsNoRows(err) {
		return nil, apperr.NotFound(apperr.ReasonUnknownBook, "book ID %d not found", id)
	}
	if err != nil {
		return nil, apperr.Store(err, "get book")
	}
	return book, nil
}

// ListBooks returns every book ordered by id.
func (s *service) ListBooks(ctx context.Context) ([]Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.list_books")
	defer span.End()

	var books []Book
	ds := s.store.From("books").Select(bookColumns...).Order(goqu.C("book_id").Asc())
	if err := store.Select(ctx, s.store.DB(), &books, ds); err != nil {
		return nil, apperr.Store(err, "list books")
	}
	return books, nil
}
