// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanPeriodDays is the lending period applied at issuance.
const LoanPeriodDays = 14

// FineRate is charged per calendar day overdue.
var FineRate = decimal.RequireFromString("0.50")

// Status is the lifecycle state of an Issue.
type Status string

const (
	StatusIssued   Status = "issued"
	StatusOverdue  Status = "overdue"
	StatusReturned Status = "returned"
)

// Issue is a single lending of one book to one user.
type Issue struct {
	ID         int64           `json:"id" db:"issue_id"`
	BookID     int64           `json:"book_id" db:"book_id"`
	UserID     int64           `json:"user_id" db:"user_id"`
	IssueDate  time.Time       `json:"issue_date" db:"issue_date"`
	DueDate    time.Time       `json:"due_date" db:"due_date"`
	ReturnDate *time.Time      `json:"return_date,omitempty" db:"return_date"`
	Status     Status          `json:"status" db:"status"`
	Fine       decimal.Decimal `json:"fine" db:"fine"`
}

// Loan is an open Issue joined with the book and borrower it refers to.
type Loan struct {
	Issue
	Username string `json:"username" db:"username"`
	Title    string `json:"title" db:"title"`
	Author   string `json:"author" db:"author"`
}

// IssueResult is returned by a successful IssueBook.
type IssueResult struct {
	IssueID   int64     `json:"issue_id"`
	BookID    int64     `json:"book_id"`
	Title     string    `json:"title"`
	Username  string    `json:"username"`
	IssueDate time.Time `json:"issue_date"`
	DueDate   time.Time `json:"due_date"`
	Message   string    `json:"message"`
}

// ReturnResult is returned by a successful ReturnBook. Fine is whatever
// SettleFines recorded on the issue; returning does not compute one.
type ReturnResult struct {
	IssueID    int64           `json:"issue_id"`
	BookID     int64           `json:"book_id"`
	Title      string          `json:"title"`
	Username   string          `json:"username"`
	ReturnDate time.Time       `json:"return_date"`
	Fine       decimal.Decimal `json:"fine"`
	Message    string          `json:"message"`
}

// FineLine is one newly charged issue in a FineReport.
type FineLine struct {
	IssueID     int64           `json:"issue_id"`
	BookID      int64           `json:"book_id"`
	Title       string          `json:"title"`
	DueDate     time.Time       `json:"due_date"`
	DaysOverdue int             `json:"days_overdue"`
	Fine        decimal.Decimal `json:"fine"`
}

// FineReport is the outcome of SettleFines. TotalOutstanding covers every
// open issue of the user, including fines set by earlier runs.
type FineReport struct {
	Username         string          `json:"username"`
	UserID           int64           `json:"user_id"`
	Lines            []FineLine      `json:"lines"`
	TotalNewFine     decimal.Decimal `json:"total_new_fine"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
}

// FineFor returns the fine for a loan due on due and assessed on today.
// Both are truncated to their UTC calendar day first. Loans not yet overdue
// yield zero days and a zero fine.
func FineFor(due, today time.Time) (int, decimal.Decimal) {
	days := daysBetween(due, today)
	if days <= 0 {
		return 0, decimal.Zero
	}
	return days, FineRate.Mul(decimal.NewFromInt(int64(days)))
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(dateOf(to).Sub(dateOf(from)).Hours() / 24)
}
