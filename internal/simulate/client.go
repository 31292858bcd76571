package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a small JSON client for the shuttle HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("healthz returned status %d", status)
	}
	return nil
}

// RegisterPlayer posts p to /players.
func (c *Client) RegisterPlayer(ctx context.Context, p PlayerRequest) error {
	status, body, err := c.do(ctx, http.MethodPost, "/players", p)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("register %s: status %d: %s", p.ID, status, strings.TrimSpace(string(body)))
	}
	return nil
}

// SubmitMatch posts m to /matches and returns the HTTP status with the ack.
func (c *Client) SubmitMatch(ctx context.Context, m MatchRequest) (int, AckResponse, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/matches", m)
	if err != nil {
		return 0, AckResponse{}, err
	}
	var ack AckResponse
	if status == http.StatusAccepted || status == http.StatusOK {
		if err := json.Unmarshal(body, &ack); err != nil {
			return status, AckResponse{}, fmt.Errorf("decode ack: %w", err)
		}
	}
	return status, ack, nil
}

// Leaderboard fetches the top limit rows.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]Entry, error) {
	var out []Entry
	if err := c.getJSON(ctx, "/leaderboard?limit="+strconv.Itoa(limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Rank fetches the leaderboard row of one player.
func (c *Client) Rank(ctx context.Context, playerID string) (Entry, error) {
	var out Entry
	err := c.getJSON(ctx, "/rank/"+url.PathEscape(playerID), &out)
	return out, err
}

// Stats fetches GET /stats.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	if err := c.getJSON(ctx, "/stats", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", path, status, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}
