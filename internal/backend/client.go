// Package backend wraps the matchmaking backend's HTTP endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/petervdpas/goop2/internal/proto"
)

// Client is a typed wrapper over the backend's join/leave/status/swipe/
// end-session/clear-waiting-room endpoints.
type Client struct {
	BaseURL     string
	HTTP        *http.Client
	TokenSource func() string
}

// New creates a Client with a 10s default request timeout.
func New(baseURL string, tokenSource func() string) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		HTTP:        &http.Client{Timeout: 10 * time.Second},
		TokenSource: tokenSource,
	}
}

type JoinResult struct {
	Status string `json:"status"` // "queued" | "matched"
	proto.MatchDescriptorJSON
}

type StatusResult struct {
	Status string `json:"status"` // "queued" | "matched" | "none"
	proto.MatchDescriptorJSON
}

// SwipeDeduction reports whether the swipe call consumed a credit and how
// much, so the host application can reflect it without re-fetching the
// user's full account state.
type SwipeDeduction struct {
	Applied bool `json:"applied,omitempty"`
	Amount  int  `json:"amount,omitempty"`
}

type SwipeResult struct {
	Success        bool            `json:"success"`
	Error          string          `json:"error,omitempty"`
	SwipeDeduction *SwipeDeduction `json:"swipe_deduction,omitempty"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.TokenSource != nil {
		if tok := c.TokenSource(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &proto.NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &proto.AuthError{Reason: "backend rejected bearer token"}
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return &proto.NetworkError{Op: method + " " + path, Err: fmt.Errorf("status %d: %s", resp.StatusCode, data)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Join(ctx context.Context) (JoinResult, error) {
	var out JoinResult
	err := c.doJSON(ctx, http.MethodPost, "/video_chat/join", nil, &out)
	return out, err
}

func (c *Client) Leave(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/video_chat/leave", nil, nil)
}

// LeaveBeacon fires a best-effort leave notification without surfacing
// errors to the caller — used on process exit, where there is nobody left
// to handle a failure.
func (c *Client) LeaveBeacon(ctx context.Context) {
	_ = c.doJSON(ctx, http.MethodPost, "/video_chat/leave", nil, nil)
}

func (c *Client) Status(ctx context.Context) (StatusResult, error) {
	var out StatusResult
	err := c.doJSON(ctx, http.MethodGet, "/video_chat/status", nil, &out)
	return out, err
}

func (c *Client) Swipe(ctx context.Context) (SwipeResult, error) {
	var out SwipeResult
	err := c.doJSON(ctx, http.MethodPost, "/video_chat/swipe", nil, &out)
	return out, err
}

func (c *Client) EndSession(ctx context.Context, room string) error {
	return c.doJSON(ctx, http.MethodPost, "/video_chat/end_session", map[string]string{"room_id": room}, nil)
}

// ClearWaitingRoom is fire-and-forget: called on every health signal per
// the resolved open question in SPEC_FULL.md §11, logged but not retried
// by the caller.
func (c *Client) ClearWaitingRoom(ctx context.Context, room, user string) error {
	return c.doJSON(ctx, http.MethodPost, "/video_chat/clear_waiting_room", map[string]string{"room_id": room, "user_id": user}, nil)
}
