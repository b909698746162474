// internal/membership/domain.go
package membership

// Role separates students, who borrow, from admins, who run the desk.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// User is a registered account. The stored credential never leaves the package.
type User struct {
	ID       int64  `json:"id" db:"user_id"`
	Username string `json:"username" db:"username"`
	Role     Role   `json:"role" db:"role"`
	Name     string `json:"name" db:"name"`
	Email    string `json:"email" db:"email"`
}

// Actor is the already-authenticated identity on whose behalf an operation runs.
type Actor struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// RegisterRequest carries a student sign-up.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
}
