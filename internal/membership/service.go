// internal/membership/service.go
package membership

import (
	"context"
	"errors"
)

// ErrUserNotFound is returned by Resolve when no user has the username and role.
var ErrUserNotFound = errors.New("user not found")

// Service defines the interface for the membership service.
type Service interface {
	Resolve(ctx context.Context, username string, role Role) (int64, error)
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	Authenticate(ctx context.Context, username, password string, role Role) (*Actor, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	ListStudents(ctx context.Context) ([]User, error)
}
