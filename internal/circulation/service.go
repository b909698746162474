// internal/circulation/service.go
package circulation

import (
	"context"

	"bookrec/internal/membership"
)

// Service defines the interface for the circulation service.
type Service interface {
	IssueBook(ctx context.Context, actor membership.Actor, username string, bookID int64) (*IssueResult, error)
	ReturnBook(ctx context.Context, actor membership.Actor, username string, bookID int64) (*ReturnResult, error)
	ActiveLoans(ctx context.Context, userID int64) ([]Loan, error)
	AllActiveLoans(ctx context.Context, actor membership.Actor) ([]Loan, error)
	SettleFines(ctx context.Context, actor membership.Actor, username string) (*FineReport, error)
}

// Resolver maps a username and role to a user id.
type Resolver interface {
	Resolve(ctx context.Context, username string, role membership.Role) (int64, error)
}
