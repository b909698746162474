// internal/clients/catalog_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"

	"bookrec/internal/catalog"
)

func (c *Client) AddBook(ctx context.Context, req catalog.AddBookRequest) (*catalog.AddResult, error) {
	var result catalog.AddResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/books", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetBook(ctx context.Context, id int64) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/books/%d", id), nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) ListBooks(ctx context.Context) ([]catalog.Book, error) {
	var books []catalog.Book
	if err := c.do(ctx, http.MethodGet, "/api/v1/books", nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

// ReloadCatalog asks the server to rebuild its catalog cache.
func (c *Client) ReloadCatalog(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/catalog/reload", nil, nil)
}
