package circulation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrec/internal/apperr"
	"bookrec/internal/circulation"
	"bookrec/internal/history"
	"bookrec/internal/membership"
	"bookrec/internal/store"
	"bookrec/internal/store/storetest"
)

var admin = membership.Actor{UserID: 1, Username: "librarian", Role: membership.RoleAdmin}

type fixture struct {
	store *store.Store
	svc   circulation.Service
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := storetest.Open(t)
	f := &fixture{store: s, now: time.Date(2024, 3, 10, 10, 30, 0, 0, time.UTC)}
	f.svc = circulation.NewService(s, membership.NewService(s), history.NewLog(s),
		circulation.WithClock(func() time.Time { return f.now }))
	storetest.AddUser(t, s, "librarian", "admin")
	return f
}

func (f *fixture) today() time.Time {
	return time.Date(f.now.Year(), f.now.Month(), f.now.Day(), 0, 0, 0, 0, time.UTC)
}

func TestIssueBookDecrementsOnlyThatBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.AddUser(t, f.store, "alice", "student")
	dune := storetest.AddBook(t, f.store, "Dune", "Frank Herbert", "Sci-Fi", 3)
	emma := storetest.AddBook(t, f.store, "Emma", "Jane Austen", "Romance", 2)

	res, err := f.svc.IssueBook(ctx, admin, "  alice ", dune)
	require.NoError(t, err)

	assert.Equal(t, "alice", res.Username)
	assert.Equal(t, "Dune", res.Title)
	assert.True(t, res.IssueDate.Equal(f.today()))
	assert.True(t, res.DueDate.Equal(f.today().AddDate(0, 0, 14)))
	assert.Contains(t, res.Message, "2024-03-24")

	assert.Equal(t, 2, storetest.Available(t, f.store, dune))
	assert.Equal(t, 2, storetest.Available(t, f.store, emma))
	assert.Equal(t, 1, storetest.Count(t, f.store, "book_issues", "issue_id = ? AND status = 'issued'", res.IssueID))
	assert.Equal(t, 1, storetest.Count(t, f.store, "user_book_history", "book_id = ? AND interaction_type = 'issued'", dune))
}

func TestIssueBookTwiceIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.AddUser(t, f.store, "alice", "student")
	dune := storetest.AddBook(t, f.store, "Dune", "Frank Herbert", "Sci-Fi", 3)

	_, err := f.svc.IssueBook(ctx, admin, "alice", dune)
	require.NoError(t, err)

	_, err = f.svc.IssueBook(ctx, admin, "alice", dune)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, apperr.ReasonAlreadyIssued, apperr.ReasonOf(err))
	assert.Equal(t, 2, storetest.Available(t, f.store, dune))
}

func TestIssueBookWithoutCopiesWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.AddUser(t, f.store, "alice", "student")
	storetest.AddUser(t, f.store, "bob", "student")
	dune := storetest.AddBook(t, f.store, "Dune", "Frank Herbert", "Sci-Fi", 1)

	_, err := f.svc.IssueBook(ctx, admin, "alice", dune)
	require.NoError(t, err)

	_, err = f.svc.IssueBook(ctx, admin, "bob", dune)
	assert.Equal(t, apperr.ReasonNoCopiesAvailable, apperr.ReasonOf(err))
	assert.Equal(t, 0, storetest.Available(t, f.store, dune))
	assert.Equal(t, 1, storetest.Count(t, f.store, "book_issues", ""))
	assert.Equal(t, 1, storetest.Count(t, f.store, "user_book_history", ""))
}

func TestIssueBookValidationOrder(t *testing.T) {
	f := newFixture(t)
	storetest.AddUser(t, f.store, "alice", "student")
	dune := storetest.AddBook(t, f.store, "Dune", "Frank Herbert", "Sci-Fi", 1)

	tests := []struct {
		name     string
		actor    membership.Actor
		username string
		bookID   int64
		kind     apperr.Kind
		reason   apperr.Reason
	}{
		{"student actor", membership.Actor{Username: "alice", Role: membership.RoleStudent}, "", 999, apperr.KindValidation, apperr.ReasonNotAdmin},
		{"empty username", admin, "   ", 999, apperr.KindValidation, apperr.ReasonEmptyUsername},
		{"unknown student", admin, "nobody", 999, apperr.KindNotFound, apperr.ReasonUnknownStudent},
		{"admin is not a student", admin, "librarian", dune, apperr.KindNotFound, apperr.ReasonUnknownStudent},
		{"case sensitive", admin, "Alice", dune, apperr.KindNotFound, apperr.ReasonUnknownStudent},
		{"unknown book", admin, "alice", 999, apperr.KindNotFound, apperr.ReasonUnknownBook},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.IssueBook(context.Background(), tt.actor, tt.username, tt.bookID)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Equal(t, tt.reason, apperr.ReasonOf(err))
		})
	}
	assert.Equal(t, 0, storetest.Count(t, f.store, "book_issues", ""))
}

func TestIssueBookRollsBackWhenDecrementFails(t *testing.T) {
	f := newFixture(t)
	storetest.AddUser(t, f.store, "alice", "student")
	dune := storetest.AddBook(t, f.store, "Dune", "Frank Herbert", "Sci-Fi", 2)

	storetest.MustExec(t, f.store, `CREATE TRIGGER fail_decrement BEFORE UPDATE ON books
		BEGIN SELECT RAISE(ABORT, 'injected fault'); END`)

	_, err := f.svc.IssueBook(context.Background(), admin, "alice", dune)
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransaction, apperr.KindOf(err))
	assert.Equal(t, apperr.ReasonTransactionFailed, apperr.ReasonOf(err))
	assert.Contains(t, err.Error(), "injected fault")

	assert.Equal(t, 2, storetest.Available(t, f.store, dune))
	assert.Equal(t, 0, storetest.Count(t, f.store, "book_issues", ""))
	assert.Equal(t, 0, storetest.Count(t, f.store, "user_book_history", ""))

	storetest.MustExec(t, f.store, `DROP TRIGGER fail_decrement`)
	_, err = f.svc.IssueBook(context.Background(), admin, "alice", dune)
	require.NoError(t, err, "a retry after rollback must succeed")
	assert.Equal(t, 1, storetest.Available(t, f.store, dune))
}

func TestIssueBookRollsBackWhenHistoryFails(t *testing.T) {
	f := newFixture(t)
	storetest.AddUser(t, f.store, "alice", "student")
	dune := storetest.AddBook(t, f.store, "Dune", "Frank Herbert", "Sci-Fi", 2)

	storetest.MustExec(t, f.store, `CREATE TRIGGER fail_history BEFORE INSERT ON user_book_history
		BEGIN SELECT RAISE(ABORT, 'history offline'); END`)

	_, err := f.svc.IssueBook(context.Background(), admin, "alice", dune)
	assert.Equal(t, apperr.KindTransaction, apperr.KindOf(err))
	assert.Equal(t, 2, storetest.Available(t, f.store, dune))
	assert.Equal(t, 0, storetest.Count(t, f.store, "book_issues", ""))
}

func TestReturnBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.AddUser(t, f.store, "alice", "student")
	dune := storetest.AddBook(t, f.store, "Dune", "Frank Herbert", "Sci-Fi", 1)

	issued, err := f.svc.IssueBook(ctx, admin, "alice", dune)
	require.NoError(t, err)
	f.now = f.now.AddDate(0, 0, 3)

	res, err := f.svc.ReturnBook(ctx, admin, "alice", dune)
	require.NoError(t, err)
	assert.Equal(t, issued.IssueID, res.IssueID)
	assert.True(t, res.Fine.IsZero())
	assert.True(t, res.ReturnDate.Equal(f.today()))

	assert.Equal(t, 1, storetest.Available(t, f.store, dune))
	assert.Equal(t, 1, storetest.Count(t, f.store, "book_issues", "status = 'returned' AND return_date IS NOT NULL"))
	assert.Equal(t, 1, storetest.Count(t, f.store, "user_book_history", "interaction_type = 'returned'"))

	_, err = f.svc.ReturnBook(ctx, admin, "alice", dune)
	assert.Equal(t, apperr.ReasonNoOpenIssue, apperr.ReasonOf(err))

	_, err = f.svc.IssueBook(ctx, admin, "alice", dune)
	require.NoError(t, err, "a returned book can be issued again")
}

func TestReturnBookReportsRecordedFine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := storetest.AddUser(t, f.store, "alice", "student")
	dune := storetest.AddBook(t, f.store, "Dune", "Frank Herbert", "Sci-Fi", 1)
	storetest.MustExec(t, f.store, "UPDATE books SET available_copies = 0 WHERE book_id = ?", dune)
	storetest.AddIssue(t, f.store, alice, dune, f.today().AddDate(0, 0, -20), f.today().AddDate(0, 0, -6), "issued")

	_, err := f.svc.SettleFines(ctx, admin, "alice")
	require.NoError(t, err)

	res, err := f.svc.ReturnBook(ctx, admin, "alice", dune)
	require.NoError(t, err)
	assert.Equal(t, "3.00", res.Fine.StringFixed(2))
	assert.Contains(t, res.Message, "3.00")
}

func TestReturnBookRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ReturnBook(context.Background(), membership.Actor{Role: membership.RoleStudent}, "alice", 1)
	assert.Equal(t, apperr.ReasonNotAdmin, apperr.ReasonOf(err))
}

func TestActiveLoans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := storetest.AddUser(t, f.store, "alice", "student")
	storetest.AddUser(t, f.store, "bob", "student")
	dune := storetest.AddBook(t, f.store, "Dune", "Frank Herbert", "Sci-Fi", 2)
	emma := storetest.AddBook(t, f.store, "Emma", "Jane Austen", "Romance", 2)

	_, err := f.svc.IssueBook(ctx, admin, "alice", emma)
	require.NoError(t, err)
	f.now = f.now.AddDate(0, 0, -1)
	_, err = f.svc.IssueBook(ctx, admin, "alice", dune)
	require.NoError(t, err)
	_, err = f.svc.IssueBook(ctx, admin, "bob", dune)
	require.NoError(t, err)

	loans, err := f.svc.ActiveLoans(ctx, alice)
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, "Dune", loans[0].Title, "earliest due first")
	assert.Equal(t, "Frank Herbert", loans[0].Author)
	assert.Equal(t, "Emma", loans[1].Title)
	assert.Equal(t, "alice", loans[1].Username)
	assert.Equal(t, circulation.StatusIssued, loans[1].Status)

	all, err := f.svc.AllActiveLoans(ctx, admin)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"alice", "alice", "bob"}, []string{all[0].Username, all[1].Username, all[2].Username})

	_, err = f.svc.AllActiveLoans(ctx, membership.Actor{Role: membership.RoleStudent})
	assert.Equal(t, apperr.ReasonNotAdmin, apperr.ReasonOf(err))

	none, err := f.svc.ActiveLoans(ctx, 4242)
	require.NoError(t, err)
	assert.Empty(t, none)
}
