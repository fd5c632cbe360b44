// Package client talks to a remote trivia server: HTTP for snapshots and the
// websocket stream for broadcast events.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trivia-sync-service/internal/codegen"
	"trivia-sync-service/internal/domain"
)

// Client is a thin JSON client of the REST API. It implements reconcile.SnapshotSource.
type Client struct {
	baseURL string
	http    *http.Client
}

// APIError is a non-2xx response that does not map onto a domain error.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Snapshot fetches the polling projection of a session.
func (c *Client) Snapshot(ctx context.Context, code string) (domain.SessionSnapshot, error) {
	var snap domain.SessionSnapshot
	err := c.get(ctx, "/api/sessions/"+url.PathEscape(codegen.Normalize(code))+"/snapshot", domain.ErrSessionNotFound, &snap)
	return snap, err
}

// Leaderboard fetches the current standings of a session.
func (c *Client) Leaderboard(ctx context.Context, code string) ([]domain.ScoreSnapshot, error) {
	var standings []domain.ScoreSnapshot
	err := c.get(ctx, "/api/sessions/"+url.PathEscape(codegen.Normalize(code))+"/leaderboard", domain.ErrSessionNotFound, &standings)
	return standings, err
}

func (c *Client) get(ctx context.Context, path string, notFound error, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", notFound, body.Error)
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %s", domain.ErrValidation, body.Error)
		}
		return &APIError{Status: resp.StatusCode, Message: body.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
