package cli_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrec/internal/apperr"
	"bookrec/internal/catalog"
	"bookrec/internal/circulation"
	"bookrec/internal/cli"
	"bookrec/internal/membership"
	"bookrec/internal/server"
	"bookrec/internal/store/storetest"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("BOOKREC_STORE_DSN", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("BOOKREC_LOGGING_LEVEL", "disabled")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := cli.NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func runJSON(t *testing.T, v interface{}, args ...string) {
	t.Helper()
	out, err := run(t, append(args, "--format", "json")...)
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func TestLocalDeskFlow(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date (sqlite3)")

	var user membership.User
	runJSON(t, &user, "register", "--username", "alice", "--password", "pw", "--name", "Alice", "--email", "alice@example.com")
	require.NotZero(t, user.ID)
	uid := strconv.FormatInt(user.ID, 10)

	var rama catalog.AddResult
	runJSON(t, &rama, "add-book", "--title", "Rama", "--author", "A. Clarke", "--genre", "Sci-Fi", "--year", "1973")
	require.Equal(t, catalog.OutcomeAdded, rama.Outcome)
	ramaID := strconv.FormatInt(rama.Book.ID, 10)

	out, err = run(t, "add-book", "--title", "Hyperion", "--author", "Dan Simmons", "--genre", "Sci-Fi", "--year", "1989")
	require.NoError(t, err)
	assert.Contains(t, out, "book 'Hyperion' added successfully")

	out, err = run(t, "add-book", "--title", "rama", "--author", "a. clarke", "--genre", "Sci-Fi", "--year", "1973")
	require.NoError(t, err)
	assert.Contains(t, out, "warning: a book with the same title and author already exists")

	out, err = run(t, "issue", "alice", ramaID)
	require.NoError(t, err)
	assert.Contains(t, out, "book 'Rama' issued to alice")

	var loans []circulation.Loan
	runJSON(t, &loans, "loans", uid)
	require.Len(t, loans, 1)
	assert.Equal(t, circulation.StatusIssued, loans[0].Status)

	out, err = run(t, "loans")
	require.NoError(t, err)
	assert.Contains(t, out, "Rama")

	var recs []catalog.Entry
	runJSON(t, &recs, "recommend", uid)
	require.Len(t, recs, 1)
	assert.Equal(t, "Hyperion", recs[0].Title)

	out, err = run(t, "fines", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "no overdue books for alice")
	assert.Contains(t, out, "outstanding 0.00")

	_, err = run(t, "return", "alice", ramaID)
	require.NoError(t, err)

	out, err = run(t, "books")
	require.NoError(t, err)
	assert.Contains(t, out, "Rama")
	assert.Contains(t, out, "1/1")
}

func TestLocalDeskErrors(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "issue", "ghost", "1")
	assert.Equal(t, apperr.ReasonUnknownStudent, apperr.ReasonOf(err))

	_, err = run(t, "issue", "alice", "abc")
	assert.ErrorContains(t, err, `invalid book ID "abc"`)

	_, err = run(t, "books", "--format", "yaml")
	assert.ErrorContains(t, err, `invalid format "yaml"`)

	t.Setenv("BOOKREC_CLIENT_ACTOR_ROLE", "student")
	_, err = run(t, "loans")
	assert.Equal(t, apperr.ReasonNotAdmin, apperr.ReasonOf(err))
}

func TestRemoteDesk(t *testing.T) {
	setupEnv(t)

	svc := server.NewServices(storetest.Open(t), server.Options{})
	srv := httptest.NewServer(server.NewRouter(svc))
	defer srv.Close()

	_, err := run(t, "--api", srv.URL, "register", "--username", "bob", "--password", "pw", "--name", "Bob", "--email", "bob@example.com")
	require.NoError(t, err)

	var added catalog.AddResult
	runJSON(t, &added, "--api", srv.URL, "add-book", "--title", "Dune", "--author", "Frank Herbert", "--genre", "Sci-Fi", "--year", "1965", "--copies", "2")

	var issued circulation.IssueResult
	runJSON(t, &issued, "--api", srv.URL, "issue", "bob", strconv.FormatInt(added.Book.ID, 10))
	assert.Equal(t, "Dune", issued.Title)

	_, err = run(t, "--api", srv.URL, "issue", "bob", strconv.FormatInt(added.Book.ID, 10))
	assert.Equal(t, apperr.ReasonAlreadyIssued, apperr.ReasonOf(err))

	book, err := svc.Catalog.GetBook(t.Context(), added.Book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, book.AvailableCopies)
}
