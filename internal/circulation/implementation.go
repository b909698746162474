// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"bookrec/internal/apperr"
	"bookrec/internal/history"
	"bookrec/internal/logging"
	"bookrec/internal/membership"
	"bookrec/internal/store"
)

var loanColumns = []interface{}{
	goqu.I("bi.issue_id").As("issue_id"),
	goqu.I("bi.book_id").As("book_id"),
	goqu.I("bi.user_id").As("user_id"),
	goqu.I("bi.issue_date").As("issue_date"),
	goqu.I("bi.due_date").As("due_date"),
	goqu.I("bi.return_date").As("return_date"),
	goqu.I("bi.status").As("status"),
	goqu.I("bi.fine").As("fine"),
	goqu.I("u.username").As("username"),
	goqu.I("b.title").As("title"),
	goqu.I("b.author").As("author"),
}

type bookRow struct {
	ID              int64  `db:"book_id"`
	Title           string `db:"title"`
	TotalCopies     int    `db:"total_copies"`
	AvailableCopies int    `db:"available_copies"`
}

type metrics struct {
	issued   metric.Int64Counter
	returned metric.Int64Counter
	fined    metric.Int64Counter
}

// service implements the Service interface.
type service struct {
	store   *store.Store
	users   Resolver
	history *history.Log
	now     func() time.Time
	tracer  trace.Tracer
	metrics metrics
}

// Option customizes the circulation service.
type Option func(*service)

// WithClock replaces time.Now. Dates derive from the clock's UTC day.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new circulation service instance.
func NewService(st *store.Store, users Resolver, hist *history.Log, opts ...Option) Service {
	s := &service{
		store:   st,
		users:   users,
		history: hist,
		now:     time.Now,
		tracer:  otel.Tracer("bookrec/circulation"),
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter("bookrec/circulation")
	s.metrics.issued, _ = meter.Int64Counter("bookrec.circulation.issues",
		metric.WithDescription("Books issued"))
	s.metrics.returned, _ = meter.Int64Counter("bookrec.circulation.returns",
		metric.WithDescription("Books returned"))
	s.metrics.fined, _ = meter.Int64Counter("bookrec.circulation.fines_assessed",
		metric.WithDescription("Issues moved to overdue with a fine"))
	return s
}

func (s *service) today() time.Time {
	return dateOf(s.now())
}

// IssueBook lends bookID to the named student. Validation stops at the first
// failure; the issue row, the availability decrement and the history event
// commit together or not at all.
func (s *service) IssueBook(ctx context.Context, actor membership.Actor, username string, bookID int64) (*IssueResult, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.issue_book", trace.WithAttributes(attribute.Int64("book.id", bookID)))
	defer span.End()

	if !actor.IsAdmin() {
		return nil, apperr.Validation(apperr.ReasonNotAdmin, "only admins can issue books")
	}
	username, userID, err := s.resolveStudent(ctx, username)
	if err != nil {
		return nil, err
	}
	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.AvailableCopies < 1 {
		return nil, apperr.Conflict(apperr.ReasonNoCopiesAvailable, "'%s' (ID: %d) has no available copies", book.Title, bookID)
	}
	open, err := s.openIssue(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, apperr.Conflict(apperr.ReasonAlreadyIssued, "student '%s' already has '%s' issued", username, book.Title)
	}

	today := s.today()
	due := today.AddDate(0, 0, LoanPeriodDays)

	var issueID int64
	err = s.store.WithTx(ctx, "issue_book", func(tx *sqlx.Tx) error {
		ins := s.store.Insert("book_issues").Rows(goqu.Record{
			"book_id":    bookID,
			"user_id":    userID,
			"issue_date": today,
			"due_date":   due,
			"status":     string(StatusIssued),
			"fine":       decimal.Zero,
		})
		var err error
		issueID, err = s.store.InsertID(ctx, tx, ins, "issue_id")
		if store.IsUniqueViolation(err) {
			return apperr.Conflict(apperr.ReasonAlreadyIssued, "student '%s' already has '%s' issued", username, book.Title)
		}
		if err != nil {
			return fmt.Errorf("insert issue: %w", err)
		}

		dec := s.store.Update("books").
			Set(goqu.Record{"available_copies": goqu.L("available_copies - 1")}).
			Where(goqu.C("book_id").Eq(bookID), goqu.C("available_copies").Gt(0))
		n, err := store.ExecAffected(ctx, tx, dec)
		if err != nil {
			return fmt.Errorf("decrement available copies: %w", err)
		}
		if n == 0 {
			return apperr.Conflict(apperr.ReasonNoCopiesAvailable, "'%s' (ID: %d) has no available copies", book.Title, bookID)
		}

		return s.history.Append(ctx, tx, history.Event{
			UserID:    userID,
			BookID:    bookID,
			Kind:      history.KindIssued,
			Timestamp: s.now().UTC(),
		})
	})
	if err != nil {
		return nil, s.txFailure(ctx, span, err, "book issuance")
	}

	s.metrics.issued.Add(ctx, 1)
	span.SetAttributes(attribute.Int64("issue.id", issueID))
	logging.Ctx(ctx).Info().
		Int64("issue_id", issueID).
		Int64("book_id", bookID).
		Str("username", username).
		Time("due_date", due).
		Msg("book issued")

	return &IssueResult{
		IssueID:   issueID,
		BookID:    bookID,
		Title:     book.Title,
		Username:  username,
		IssueDate: today,
		DueDate:   due,
		Message:   fmt.Sprintf("book '%s' issued to %s, due on %s", book.Title, username, due.Format(time.DateOnly)),
	}, nil
}

// ReturnBook closes the student's open issue of bookID and puts the copy back.
func (s *service) ReturnBook(ctx context.Context, actor membership.Actor, username string, bookID int64) (*ReturnResult, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return_book", trace.WithAttributes(attribute.Int64("book.id", bookID)))
	defer span.End()

	if !actor.IsAdmin() {
		return nil, apperr.Validation(apperr.ReasonNotAdmin, "only admins can record returns")
	}
	username, userID, err := s.resolveStudent(ctx, username)
	if err != nil {
		return nil, err
	}
	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	open, err := s.openIssue(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return nil, apperr.NotFound(apperr.ReasonNoOpenIssue, "student '%s' has no open issue of '%s'", username, book.Title)
	}

	today := s.today()
	err = s.store.WithTx(ctx, "return_book", func(tx *sqlx.Tx) error {
		upd := s.store.Update("book_issues").
			Set(goqu.Record{"status": string(StatusReturned), "return_date": today}).
			Where(goqu.C("issue_id").Eq(open.ID), goqu.C("status").Neq(string(StatusReturned)))
		n, err := store.ExecAffected(ctx, tx, upd)
		if err != nil {
			return fmt.Errorf("close issue: %w", err)
		}
		if n == 0 {
			return apperr.NotFound(apperr.ReasonNoOpenIssue, "issue %d was already returned", open.ID)
		}

		inc := s.store.Update("books").
			Set(goqu.Record{"available_copies": goqu.L("available_copies + 1")}).
			Where(goqu.C("book_id").Eq(bookID), goqu.C("available_copies").Lt(goqu.C("total_copies")))
		n, err = store.ExecAffected(ctx, tx, inc)
		if err != nil {
			return fmt.Errorf("increment available copies: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("book %d already has every copy available", bookID)
		}

		return s.history.Append(ctx, tx, history.Event{
			UserID:    userID,
			BookID:    bookID,
			Kind:      history.KindReturned,
			Timestamp: s.now().UTC(),
		})
	})
	if err != nil {
		return nil, s.txFailure(ctx, span, err, "book return")
	}

	s.metrics.returned.Add(ctx, 1)
	logging.Ctx(ctx).Info().
		Int64("issue_id", open.ID).
		Int64("book_id", bookID).
		Str("username", username).
		Str("fine", open.Fine.StringFixed(2)).
		Msg("book returned")

	msg := fmt.Sprintf("book '%s' returned by %s", book.Title, username)
	if open.Fine.IsPositive() {
		msg += fmt.Sprintf(", outstanding fine %s", open.Fine.StringFixed(2))
	}
	return &ReturnResult{
		IssueID:    open.ID,
		BookID:     bookID,
		Title:      book.Title,
		Username:   username,
		ReturnDate: today,
		Fine:       open.Fine,
		Message:    msg,
	}, nil
}

// ActiveLoans lists a user's open issues, earliest due first.
func (s *service) ActiveLoans(ctx context.Context, userID int64) ([]Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.active_loans", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	ds := s.loansQuery().
		Where(goqu.I("bi.user_id").Eq(userID)).
		Order(goqu.I("bi.due_date").Asc(), goqu.I("bi.issue_id").Asc())
	return s.selectLoans(ctx, ds)
}

// AllActiveLoans lists every open issue, grouped by username.
func (s *service) AllActiveLoans(ctx context.Context, actor membership.Actor) ([]Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.all_active_loans")
	defer span.End()

	if !actor.IsAdmin() {
		return nil, apperr.Validation(apperr.ReasonNotAdmin, "only admins can list every loan")
	}
	ds := s.loansQuery().
		Order(goqu.I("u.username").Asc(), goqu.I("bi.due_date").Asc(), goqu.I("bi.issue_id").Asc())
	return s.selectLoans(ctx, ds)
}

func (s *service) loansQuery() *goqu.SelectDataset {
	return s.store.From(goqu.T("book_issues").As("bi")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("bi.book_id").Eq(goqu.I("b.book_id")))).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("bi.user_id").Eq(goqu.I("u.user_id")))).
		Select(loanColumns...).
		Where(goqu.I("bi.status").Neq(string(StatusReturned)))
}

func (s *service) selectLoans(ctx context.Context, ds *goqu.SelectDataset) ([]Loan, error) {
	loans := []Loan{}
	if err := store.Select(ctx, s.store.DB(), &loans, ds); err != nil {
		return nil, apperr.Store(err, "list loans")
	}
	return loans, nil
}

func (s *service) resolveStudent(ctx context.Context, username string) (string, int64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", 0, apperr.Validation(apperr.ReasonEmptyUsername, "student username cannot be empty")
	}

	id, err := s.users.Resolve(ctx, username, membership.RoleStudent)
	if errors.Is(err, membership.ErrUserNotFound) {
		return "", 0, apperr.NotFound(apperr.ReasonUnknownStudent, "student '%s' not found", username)
	}
	if err != nil {
		return "", 0, apperr.Store(err, "resolve student")
	}
	return username, id, nil
}

func (s *service) loadBook(ctx context.Context, bookID int64) (*bookRow, error) {
	book := &bookRow{}
	ds := s.store.From("books").
		Select("book_id", "title", "total_copies", "available_copies").
		Where(goqu.C("book_id").Eq(bookID))
	err := store.Get(ctx, s.store.DB(), book, ds)
	if store.IsNoRows(err) {
		return nil, apperr.NotFound(apperr.ReasonUnknownBook, "book ID %d not found", bookID)
	}
	if err != nil {
		return nil, apperr.Store(err, "load book")
	}
	return book, nil
}

// openIssue returns the non-returned issue for the pair, or nil.
func (s *service) openIssue(ctx context.Context, userID, bookID int64) (*Issue, error) {
	issue := &Issue{}
	ds := s.store.From("book_issues").
		Select("issue_id", "book_id", "user_id", "issue_date", "due_date", "return_date", "status", "fine").
		Where(
			goqu.C("user_id").Eq(userID),
			goqu.C("book_id").Eq(bookID),
			goqu.C("status").Neq(string(StatusReturned)),
		).
		Limit(1)
	err := store.Get(ctx, s.store.DB(), issue, ds)
	if store.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store(err, "check open issue")
	}
	return issue, nil
}

// txFailure passes rule violations detected inside the transaction through
// and reports everything else as TransactionFailed. Either way nothing was
// written.
func (s *service) txFailure(ctx context.Context, span trace.Span, err error, op string) error {
	span.RecordError(err)
	switch apperr.KindOf(err) {
	case apperr.KindConflict, apperr.KindNotFound:
		return err
	}

	span.SetStatus(codes.Error, "transaction failed")
	logging.Ctx(ctx).Error().Err(err).Str("op", op).Msg("transaction rolled back")
	return apperr.TransactionFailed(err, op)
}
