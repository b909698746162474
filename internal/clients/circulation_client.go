// internal/clients/circulation_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"bookrec/internal/catalog"
	"bookrec/internal/circulation"
	"bookrec/internal/history"
)

func (c *Client) IssueBook(ctx context.Context, username string, bookID int64) (*circulation.IssueResult, error) {
	var result circulation.IssueResult
	req := circulation.LoanRequest{Username: username, BookID: bookID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/issues", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ReturnBook(ctx context.Context, username string, bookID int64) (*circulation.ReturnResult, error) {
	var result circulation.ReturnResult
	req := circulation.LoanRequest{Username: username, BookID: bookID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/returns", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) SettleFines(ctx context.Context, username string) (*circulation.FineReport, error) {
	var report circulation.FineReport
	path := fmt.Sprintf("/api/v1/students/%s/fines", url.PathEscape(username))
	if err := c.do(ctx, http.MethodPost, path, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) ActiveLoans(ctx context.Context, userID int64) ([]circulation.Loan, error) {
	var loans []circulation.Loan
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/loans", userID), nil, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

func (c *Client) AllActiveLoans(ctx context.Context) ([]circulation.Loan, error) {
	var loans []circulation.Loan
	if err := c.do(ctx, http.MethodGet, "/api/v1/issues", nil, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

func (c *Client) Recommendations(ctx context.Context, userID int64) ([]catalog.Entry, error) {
	var entries []catalog.Entry
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/recommendations", userID), nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// History lists the user's issue and return events, oldest first.
func (c *Client) History(ctx context.Context, userID int64) ([]history.Event, error) {
	var events []history.Event
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/history", userID), nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}
