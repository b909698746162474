package clients_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrec/internal/apperr"
	"bookrec/internal/catalog"
	"bookrec/internal/clients"
	"bookrec/internal/membership"
	"bookrec/internal/server"
	"bookrec/internal/store/storetest"
)

var desk = membership.Actor{Username: "desk", Role: membership.RoleAdmin}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := server.NewServices(storetest.Open(t), server.Options{
		Clock: func() time.Time { return time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, svc.Catalog.Reload(context.Background()))
	srv := httptest.NewServer(server.NewRouter(svc))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTrip(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	admin := clients.NewClient(srv.URL+"/", clients.WithHTTPClient(srv.Client()), clients.WithActor(desk))

	require.NoError(t, admin.Healthy(ctx))

	user, err := admin.Register(ctx, membership.RegisterRequest{
		Username: "alice", Password: "pw", Name: "Alice", Email: "alice@example.com",
	})
	require.NoError(t, err)

	actor, err := admin.Login(ctx, "alice", "pw", membership.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, user.ID, actor.UserID)

	added, err := admin.AddBook(ctx, catalog.AddBookRequest{Title: "Rama", Author: "A. Clarke", Genre: "Sci-Fi", Year: 1973, TotalCopies: 1})
	require.NoError(t, err)
	require.Equal(t, catalog.OutcomeAdded, added.Outcome)
	_, err = admin.AddBook(ctx, catalog.AddBookRequest{Title: "Hyperion", Author: "Dan Simmons", Genre: "Sci-Fi", Year: 1989, TotalCopies: 1})
	require.NoError(t, err)

	dup, err := admin.AddBook(ctx, catalog.AddBookRequest{Title: "RAMA", Author: "A. CLARKE", Genre: "Sci-Fi", Year: 1973, TotalCopies: 1})
	require.NoError(t, err)
	assert.True(t, dup.Warning())
	assert.Equal(t, added.Book.ID, dup.ExistingID)

	issued, err := admin.IssueBook(ctx, "alice", added.Book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rama", issued.Title)

	book, err := admin.GetBook(ctx, added.Book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, book.AvailableCopies)

	loans, err := admin.ActiveLoans(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, issued.IssueID, loans[0].ID)

	all, err := admin.AllActiveLoans(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	recs, err := admin.Recommendations(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Hyperion", recs[0].Title)

	report, err := admin.SettleFines(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, report.Lines)
	assert.True(t, report.TotalOutstanding.IsZero())

	returned, err := admin.ReturnBook(ctx, "alice", added.Book.ID)
	require.NoError(t, err)
	assert.Equal(t, issued.IssueID, returned.IssueID)

	events, err := admin.History(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	books, err := admin.ListBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 2)

	students, err := admin.ListStudents(ctx)
	require.NoError(t, err)
	assert.Len(t, students, 1)

	require.NoError(t, admin.ReloadCatalog(ctx))
}

func TestClientReturnsTaggedErrors(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	anon := clients.NewClient(srv.URL, clients.WithHTTPClient(srv.Client()))
	_, err := anon.IssueBook(ctx, "alice", 1)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, apperr.ReasonNotAdmin, apperr.ReasonOf(err))

	admin := clients.NewClient(srv.URL, clients.WithHTTPClient(srv.Client()), clients.WithActor(desk))
	_, err = admin.IssueBook(ctx, "ghost", 1)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.ErrorIs(t, err, &apperr.Error{Reason: apperr.ReasonUnknownStudent})

	_, err = admin.GetBook(ctx, 77)
	assert.Equal(t, apperr.ReasonUnknownBook, apperr.ReasonOf(err))
}

func TestClientUnexpectedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := clients.NewClient(srv.URL, clients.WithHTTPClient(srv.Client()), clients.WithTimeout(time.Second))
	err := c.Healthy(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, apperr.KindUnknown, apperr.KindOf(err))
}
