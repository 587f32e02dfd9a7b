// Package panel talks to the game panel's client API for a single managed
// server: power signals, console commands, and power-state queries.
package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Signal is a power action accepted by the panel.
type Signal string

const (
	SignalStart   Signal = "start"
	SignalStop    Signal = "stop"
	SignalRestart Signal = "restart"
	SignalKill    Signal = "kill"
)

// Power states the orchestrator compares against. The panel may report
// other states (starting, stopping); they are passed through as-is.
const (
	StateOffline = "offline"
	StateRunning = "running"
)

// APIError is a non-2xx response from the panel.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("panel API returned %d: %s", e.Status, e.Body)
}

// Controller is the control surface the match engine depends on.
type Controller interface {
	SendPower(ctx context.Context, signal Signal) error
	SendCommand(ctx context.Context, command string) error
	CurrentState(ctx context.Context) (string, error)
}

// Client implements Controller against the panel client API. Each call is
// exactly one request; retry policy belongs to the caller.
type Client struct {
	baseURL  string
	token    string
	serverID string
	http     *http.Client
}

// NewClient creates a panel client for one server. baseURL is the panel
// root (no trailing slash), token a client API token.
func NewClient(baseURL, token, serverID string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		token:    token,
		serverID: serverID,
		http:     &http.Client{Timeout: timeout},
	}
}

// SendPower issues a power signal to the server.
func (c *Client) SendPower(ctx context.Context, signal Signal) error {
	_, err := c.do(ctx, http.MethodPost, "/power", map[string]string{"signal": string(signal)})
	return err
}

// SendCommand runs a console command on the server. The command text is
// sent verbatim; callers are responsible for sanitizing anything
// user-supplied before it gets here.
func (c *Client) SendCommand(ctx context.Context, command string) error {
	_, err := c.do(ctx, http.MethodPost, "/command", map[string]string{"command": command})
	return err
}

// CurrentState returns the server's power state as reported by the panel.
func (c *Client) CurrentState(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/resources", nil)
	if err != nil {
		return "", err
	}

	var res struct {
		Attributes struct {
			CurrentState string `json:"current_state"`
		} `json:"attributes"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("parsing resources response: %w", err)
	}
	return res.Attributes.CurrentState, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	url := fmt.Sprintf("%s/api/client/servers/%s%s", c.baseURL, c.serverID, endpoint)

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
