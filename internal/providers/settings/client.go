package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Client talks to the settings service that owns per-app execution commands.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

type Settings struct {
	AppID         string `json:"appId"`
	GameID        string `json:"gameId"`
	UpdateCommand string `json:"updateCommand"`
}

type RegisterRequest struct {
	UpdateID string `json:"updateId"`
	UserID   string `json:"userId"`
	AppID    string `json:"appId"`
	GameID   string `json:"gameId"`
}

type RegisterResponse struct {
	ID string `json:"id"`
}

type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("settings api http %d: %s", e.StatusCode, e.Body)
}

var ErrNoUpdateCommand = errors.New("settings have no update command")

func (c *Client) GetSettings(ctx context.Context, appID, gameID string) (Settings, error) {
	q := url.Values{}
	q.Set("appId", appID)
	q.Set("gameId", gameID)

	var out Settings
	if err := c.do(ctx, http.MethodGet, "/settings?"+q.Encode(), nil, &out); err != nil {
		return Settings{}, err
	}
	if strings.TrimSpace(out.UpdateCommand) == "" {
		return Settings{}, ErrNoUpdateCommand
	}
	return out, nil
}

// RegisterUpdateRequest records the request server-side and returns the id the server assigned.
func (c *Client) RegisterUpdateRequest(ctx context.Context, req RegisterRequest) (RegisterResponse, error) {
	var out RegisterResponse
	err := c.do(ctx, http.MethodPost, "/updates/requests", req, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "apiKey "+c.APIKey)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// ShouldRetry reports whether a failed call is transient.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.StatusCode == http.StatusTooManyRequests, reqErr.StatusCode == http.StatusRequestTimeout:
			return true
		case reqErr.StatusCode >= 500:
			return true
		}
	}
	return false
}
