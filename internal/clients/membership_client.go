// internal/clients/membership_client.go
package clients

import (
	"context"
	"net/http"

	"bookrec/internal/membership"
)

func (c *Client) Register(ctx context.Context, req membership.RegisterRequest) (*membership.User, error) {
	var user membership.User
	if err := c.do(ctx, http.MethodPost, "/api/v1/students", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Login(ctx context.Context, username, password string, role membership.Role) (*membership.Actor, error) {
	body := map[string]string{"username": username, "password": password, "role": string(role)}
	var actor membership.Actor
	if err := c.do(ctx, http.MethodPost, "/api/v1/login", body, &actor); err != nil {
		return nil, err
	}
	return &actor, nil
}

func (c *Client) ListStudents(ctx context.Context) ([]membership.User, error) {
	var users []membership.User
	if err := c.do(ctx, http.MethodGet, "/api/v1/students", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}
