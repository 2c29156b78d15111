// Package remote defines the remote row-store collaborator and its
// HTTP implementation.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/qualivida/portalsync/internal/errors"
)

// DefaultTimeout bounds every remote call so a hung request cannot
// stall the sync loop.
const DefaultTimeout = 15 * time.Second

// Client is a PostgREST-style RowStore over HTTP. Rows live under
// {baseURL}/rest/v1/{table}; filters and the id predicate use the
// column=eq.value query syntax.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient creates a Client against the given backend base URL.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Select implements RowStore.
func (c *Client) Select(ctx context.Context, table string, filter map[string]string) ([]Row, error) {
	query := url.Values{}
	for column, value := range filter {
		query.Set(column, "eq."+value)
	}

	body, err := c.do(ctx, http.MethodGet, c.tableURL(table, query), nil)
	if err != nil {
		return nil, err
	}

	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemote, "failed to decode select response", err)
	}
	return rows, nil
}

// Insert implements RowStore.
func (c *Client) Insert(ctx context.Context, table string, row Row) (Row, error) {
	payload, err := json.Marshal(row)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode row", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.tableURL(table, nil), payload)
	if err != nil {
		return nil, err
	}

	// The backend echoes the stored representation as a one-element array.
	var rows []Row
	if len(body) > 0 && json.Unmarshal(body, &rows) == nil && len(rows) > 0 {
		return rows[0], nil
	}
	return row, nil
}

// Update implements RowStore.
func (c *Client) Update(ctx context.Context, table, id string, patch Row) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode patch", err)
	}

	query := url.Values{}
	query.Set("id", "eq."+id)
	_, err = c.do(ctx, http.MethodPatch, c.tableURL(table, query), payload)
	return err
}

// Delete implements RowStore.
func (c *Client) Delete(ctx context.Context, table, id string) error {
	query := url.Values{}
	query.Set("id", "eq."+id)
	_, err := c.do(ctx, http.MethodDelete, c.tableURL(table, query), nil)
	return err
}

func (c *Client) tableURL(table string, query url.Values) string {
	u := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, url.PathEscape(table))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, method, rawURL string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemote, "failed to build request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteUnreachable, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemote, "failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		return nil, apperrors.New(apperrors.ErrRemoteRejected,
			fmt.Sprintf("%s %s: %s", method, rawURL, msg))
	}
	return data, nil
}
