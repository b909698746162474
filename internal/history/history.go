// internal/history/history.go
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bookrec/internal/store"
)

var ErrInvalidEvent = errors.New("invalid history event")

// Kind is the interaction recorded for a user and a book.
type Kind string

const (
	KindIssued   Kind = "issued"
	KindReturned Kind = "returned"
)

// Event is one row of the append-only interaction log. Rows are never
// updated or deleted.
type Event struct {
	UserID    int64     `json:"user_id" db:"user_id"`
	BookID    int64     `json:"book_id" db:"book_id"`
	Kind      Kind      `json:"interaction_type" db:"interaction_type"`
	Timestamp time.Time `json:"timestamp" db:"occurred_at"`
}

// Log reads and appends user_book_history rows.
type Log struct {
	store  *store.Store
	tracer trace.Tracer
}

func NewLog(s *store.Store) *Log {
	return &Log{
		store:  s,
		tracer: otel.Tracer("bookrec/history"),
	}
}

// Append writes e through q, normally the caller's open transaction.
func (l *Log) Append(ctx context.Context, q sqlx.ExecerContext, e Event) error {
	ctx, span := l.tracer.Start(ctx, "history.append",
		trace.WithAttributes(
			attribute.Int64("user.id", e.UserID),
			attribute.Int64("book.id", e.BookID),
			attribute.String("interaction.type", string(e.Kind)),
		),
	)
	defer span.End()

	if e.UserID <= 0 || e.BookID <= 0 || e.Kind == "" {
		return ErrInvalidEvent
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	_, err := store.Exec(ctx, q, l.store.Insert("user_book_history").Rows(goqu.Record{
		"user_id":          e.UserID,
		"book_id":          e.BookID,
		"interaction_type": string(e.Kind),
		"occurred_at":      e.Timestamp.UTC(),
	}))
	if err != nil {
		return fmt.Errorf("insert history event: %w", err)
	}
	return nil
}

// BookIDs returns the distinct books the user has interacted with.
func (l *Log) BookIDs(ctx context.Context, userID int64) ([]int64, error) {
	ctx, span := l.tracer.Start(ctx, "history.book_ids",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	var ids []int64
	ds := l.store.From("user_book_history").
		Select("book_id").
		Distinct().
		Where(goqu.C("user_id").Eq(userID)).
		Order(goqu.C("book_id").Asc())
	if err := store.Select(ctx, l.store.DB(), &ids, ds); err != nil {
		return nil, fmt.Errorf("query history books: %w", err)
	}

	span.SetAttributes(attribute.Int("books.loaded", len(ids)))
	return ids, nil
}

// ForUser returns the user's events oldest first.
func (l *Log) ForUser(ctx context.Context, userID int64) ([]Event, error) {
	ctx, span := l.tracer.Start(ctx, "history.for_user",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	var events []Event
	ds := l.store.From("user_book_history").
		Select("user_id", "book_id", "interaction_type", "occurred_at").
		Where(goqu.C("user_id").Eq(userID)).
		Order(goqu.C("occurred_at").Asc())
	if err := store.Select(ctx, l.store.DB(), &events, ds); err != nil {
		return nil, fmt.Errorf("query history events: %w", err)
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}
