// internal/cli/backend.go
package cli

import (
	"context"
	"fmt"

	"bookrec/internal/catalog"
	"bookrec/internal/circulation"
	"bookrec/internal/clients"
	"bookrec/internal/config"
	"bookrec/internal/membership"
	"bookrec/internal/server"
	"bookrec/internal/store"
)

// Backend is what the desk commands need. *clients.Client satisfies it
// directly; localBackend adapts the in-process services.
type Backend interface {
	Register(ctx context.Context, req membership.RegisterRequest) (*membership.User, error)
	AddBook(ctx context.Context, req catalog.AddBookRequest) (*catalog.AddResult, error)
	ListBooks(ctx context.Context) ([]catalog.Book, error)
	IssueBook(ctx context.Context, username string, bookID int64) (*circulation.IssueResult, error)
	ReturnBook(ctx context.Context, username string, bookID int64) (*circulation.ReturnResult, error)
	ActiveLoans(ctx context.Context, userID int64) ([]circulation.Loan, error)
	AllActiveLoans(ctx context.Context) ([]circulation.Loan, error)
	SettleFines(ctx context.Context, username string) (*circulation.FineReport, error)
	Recommendations(ctx context.Context, userID int64) ([]catalog.Entry, error)
}

var _ Backend = (*clients.Client)(nil)

func deskActor(cfg config.ClientConfig) membership.Actor {
	user := cfg.ActorUser
	if user == "" {
		user = "admin"
	}
	return membership.Actor{Username: user, Role: membership.Role(cfg.ActorRole)}
}

func servicesOptions(cfg *config.Config) server.Options {
	return server.Options{
		LoginsPerMinute: cfg.Membership.RateLimitPerMinute,
		LoginBurst:      cfg.Membership.RateLimitBurst,
		RecommendLimit:  cfg.Recommend.Limit,
	}
}

// openServices opens and migrates the store and warms the catalog cache.
func openServices(ctx context.Context, cfg *config.Config) (*server.Services, error) {
	st, err := store.Open(ctx, cfg.Store.Settings())
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	svc := server.NewServices(st, servicesOptions(cfg))
	if err := svc.Catalog.Reload(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return svc, nil
}

// openBackend picks the remote client when a base URL is configured.
func openBackend(ctx context.Context, cfg *config.Config) (Backend, func() error, error) {
	actor := deskActor(cfg.Client)

	if cfg.Client.BaseURL != "" {
		c := clients.NewClient(cfg.Client.BaseURL,
			clients.WithTimeout(cfg.Client.Timeout),
			clients.WithActor(actor))
		return c, func() error { return nil }, nil
	}

	svc, err := openServices(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return &localBackend{svc: svc, actor: actor}, svc.Store.Close, nil
}

type localBackend struct {
	svc   *server.Services
	actor membership.Actor
}

func (b *localBackend) Register(ctx context.Context, req membership.RegisterRequest) (*membership.User, error) {
	return b.svc.Membership.Register(ctx, req)
}

func (b *localBackend) AddBook(ctx context.Context, req catalog.AddBookRequest) (*catalog.AddResult, error) {
	return b.svc.Catalog.AddBook(ctx, req)
}

func (b *localBackend) ListBooks(ctx context.Context) ([]catalog.Book, error) {
	return b.svc.Catalog.ListBooks(ctx)
}

func (b *localBackend) IssueBook(ctx context.Context, username string, bookID int64) (*circulation.IssueResult, error) {
	return b.svc.Circulation.IssueBook(ctx, b.actor, username, bookID)
}

func (b *localBackend) ReturnBook(ctx context.Context, username string, bookID int64) (*circulation.ReturnResult, error) {
	return b.svc.Circulation.ReturnBook(ctx, b.actor, username, bookID)
}

func (b *localBackend) ActiveLoans(ctx context.Context, userID int64) ([]circulation.Loan, error) {
	return b.svc.Circulation.ActiveLoans(ctx, userID)
}

func (b *localBackend) AllActiveLoans(ctx context.Context) ([]circulation.Loan, error) {
	return b.svc.Circulation.AllActiveLoans(ctx, b.actor)
}

func (b *localBackend) SettleFines(ctx context.Context, username string) (*circulation.FineReport, error) {
	return b.svc.Circulation.SettleFines(ctx, b.actor, username)
}

func (b *localBackend) Recommendations(ctx context.Context, userID int64) ([]catalog.Entry, error) {
	return b.svc.Recommend.Recommendations(ctx, userID)
}
