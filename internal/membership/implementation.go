// internal/membership/implementation.go
package membership

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"bookrec/internal/apperr"
	"bookrec/internal/logging"
	"bookrec/internal/store"
	"bookrec/internal/validation"
)

var userColumns = []interface{}{"user_id", "username", "role", "name", "email"}

// service implements the Service interface.
type service struct {
	store       *store.Store
	rateLimiter *rate.Limiter
	tracer      trace.Tracer
}

// Option customizes the membership service.
type Option func(*service)

// WithRateLimit throttles Register and Authenticate to limit events per
// second with the given burst.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(s *service) { s.rateLimiter = rate.NewLimiter(limit, burst) }
}

// NewService creates a new membership service instance.
func NewService(st *store.Store, opts ...Option) Service {
	s := &service{
		store:       st,
		rateLimiter: rate.NewLimiter(rate.Every(1*time.Minute/5), 5), // 5 requests per minute
		tracer:      otel.Tracer("bookrec/membership"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve maps an exact, case-sensitive username and role to a user id.
func (s *service) Resolve(ctx context.Context, username string, role Role) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "membership.resolve",
		trace.WithAttributes(attribute.String("user.role", string(role))),
	)
	defer span.End()

	var id int64
	ds := s.store.From("users").
		Select("user_id").
		Where(goqu.C("username").Eq(username), goqu.C("role").Eq(string(role)))
	err := store.Get(ctx, s.store.DB(), &id, ds)
	if store.IsNoRows(err) {
		return 0, fmt.Errorf("%w: %q with role %s", ErrUserNotFound, username, role)
	}
	if err != nil {
		return 0, apperr.Store(err, "resolve user")
	}
	return id, nil
}

// Register creates a student account.
func (s *service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "membership.register")
	defer span.End()

	if !s.rateLimiter.Allow() {
		return nil, apperr.Validation(apperr.ReasonRateLimited, "rate limit exceeded")
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(&req); err != nil {
		return nil, apperr.Validation(apperr.ReasonInvalidRegistration, "registration: %v", err)
	}

	if err := s.checkAvailable(ctx, req.Username, req.Email); err != nil {
		return nil, err
	}

	credential, err := hashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		Username: req.Username,
		Role:     RoleStudent,
		Name:     req.Name,
		Email:    req.Email,
	}
	ds := s.store.Insert("users").Rows(goqu.Record{
		"username": user.Username,
		"password": credential,
		"role":     string(user.Role),
		"name":     user.Name,
		"email":    user.Email,
	})
	user.ID, err = s.store.InsertID(ctx, s.store.DB(), ds, "user_id")
	if store.IsUniqueViolation(err) {
		// Lost a race with a concurrent registration.
		if cerr := s.checkAvailable(ctx, req.Username, req.Email); cerr != nil {
			return nil, cerr
		}
	}
	if err != nil {
		return nil, apperr.Store(err, "insert user")
	}

	logging.Ctx(ctx).Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("student registered")
	return user, nil
}

func (s *service) checkAvailable(ctx context.Context, username, email string) error {
	taken, err := s.exists(ctx, goqu.C("username").Eq(username))
	if err != nil {
		return apperr.Store(err, "check username")
	}
	if taken {
		return apperr.Conflict(apperr.ReasonUsernameTaken, "username '%s' already exists", username)
	}

	taken, err = s.exists(ctx, goqu.C("email").Eq(email))
	if err != nil {
		return apperr.Store(err, "check email")
	}
	if taken {
		return apperr.Conflict(apperr.ReasonEmailTaken, "email address '%s' is already registered", email)
	}
	return nil
}

func (s *service) exists(ctx context.Context, cond goqu.Expression) (bool, error) {
	var n int
	ds := s.store.From("users").Select(goqu.COUNT("*")).Where(cond)
	if err := store.Get(ctx, s.store.DB(), &n, ds); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Authenticate verifies a username and password for the given role.
func (s *service) Authenticate(ctx context.Context, username, password string, role Role) (*Actor, error) {
	ctx, span := s.tracer.Start(ctx, "membership.authenticate",
		trace.WithAttributes(attribute.String("user.role", string(role))),
	)
	defer span.End()

	if !s.rateLimiter.Allow() {
		return nil, apperr.Validation(apperr.ReasonRateLimited, "rate limit exceeded")
	}

	var row struct {
		ID       int64  `db:"user_id"`
		Password string `db:"password"`
	}
	ds := s.store.From("users").
		Select("user_id", "password").
		Where(goqu.C("username").Eq(strings.TrimSpace(username)), goqu.C("role").Eq(string(role)))
	err := store.Get(ctx, s.store.DB(), &row, ds)
	if store.IsNoRows(err) {
		return nil, apperr.Validation(apperr.ReasonInvalidCredentials, "authentication failed: invalid credentials")
	}
	if err != nil {
		return nil, apperr.Store(err, "authenticate")
	}

	ok, err := verifyPassword(password, row.Password)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		return nil, apperr.Validation(apperr.ReasonInvalidCredentials, "authentication failed: invalid credentials")
	}

	return &Actor{UserID: row.ID, Username: strings.TrimSpace(username), Role: role}, nil
}

// GetUser retrieves a user by id.
func (s *service) GetUser(ctx context.Context, id int64) (*User, error) {
	user := &User{}
	ds := s.store.From("users").Select(userColumns...).Where(goqu.C("user_id").Eq(id))
	err := store.Get(ctx, s.store.DB(), user, ds)
	if store.IsNoRows(err) {
		return nil, apperr.NotFound(apperr.ReasonUnknownUser, "user ID %d not found", id)
	}
	if err != nil {
		return nil, apperr.Store(err, "get user")
	}
	return user, nil
}

// ListStudents returns every student ordered by id.
func (s *service) ListStudents(ctx context.Context) ([]User, error) {
	var users []User
	ds := s.store.From("users").
		Select(userColumns...).
		Where(goqu.C("role").Eq(string(RoleStudent))).
		Order(goqu.C("user_id").Asc())
	if err := store.Select(ctx, s.store.DB(), &users, ds); err != nil {
		return nil, apperr.Store(err, "list students")
	}
	return users, nil
}
