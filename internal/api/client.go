// Package api is the HTTP client for the Lookout server's REST surface:
// authentication, session listing, history pages, prompt runs, and
// permission responses.
package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lookout-sh/lookout/internal/crypto"
	"github.com/lookout-sh/lookout/internal/wire"
	"github.com/lookout-sh/lookout/pkg/logger"
)

var (
	// ErrSessionNotFound is returned when the server reports 404 for a
	// session-scoped request. Callers use it to clear stale selections.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAlreadyRunning is returned when the server rejects a run because the
	// target session already has an active turn.
	ErrAlreadyRunning = errors.New("session already running")
	// ErrUnauthorized is returned on 401; the token must be refreshed.
	ErrUnauthorized = errors.New("unauthorized")
)

// Client talks to the Lookout server REST API. Methods are safe for
// concurrent use; the token is set once during authentication.
type Client struct {
	serverURL  string
	token      string
	httpClient *http.Client
}

// NewClient creates an API client for the given base URL.
func NewClient(serverURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Token returns the current bearer token.
func (c *Client) Token() string { return c.token }

// SetToken installs a bearer token for subsequent requests.
func (c *Client) SetToken(token string) { c.token = token }

// Authenticate performs the challenge-response handshake: request a
// challenge, sign it with the identity key, exchange it for a bearer token.
func (c *Client) Authenticate(ctx context.Context, id *crypto.Identity) error {
	challengeBody, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/challenge", map[string]string{
		"publicKey": id.PublicKeyB64(),
	})
	if err != nil {
		return fmt.Errorf("request challenge: %w", err)
	}
	var challengeResp struct {
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(challengeBody, &challengeResp); err != nil {
		return fmt.Errorf("parse challenge: %w", err)
	}
	challenge, err := base64.StdEncoding.DecodeString(challengeResp.Challenge)
	if err != nil {
		return fmt.Errorf("decode challenge: %w", err)
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/v1/auth", map[string]string{
		"publicKey": id.PublicKeyB64(),
		"challenge": challengeResp.Challenge,
		"signature": id.SignChallenge(challenge),
	})
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("parse auth response: %w", err)
	}
	if !resp.Success || resp.Token == "" {
		return fmt.Errorf("authentication rejected")
	}
	c.token = resp.Token
	return nil
}

// SendPairingResponse posts the boxed account secret back to a pairing
// device identified by its ephemeral public key.
func (c *Client) SendPairingResponse(ctx context.Context, devicePublicKeyB64 string, encrypted []byte) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/response", map[string]string{
		"publicKey": devicePublicKeyB64,
		"response":  base64.StdEncoding.EncodeToString(encrypted),
	})
	return err
}

// GetPairingResponse polls for a pairing response addressed to the given
// ephemeral public key. ok is false while no response has arrived yet.
func (c *Client) GetPairingResponse(ctx context.Context, publicKeyB64 string) (encrypted []byte, ok bool, err error) {
	endpoint := "/v1/auth/response?publicKey=" + url.QueryEscape(publicKeyB64)
	body, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var resp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false, fmt.Errorf("parse pairing response: %w", err)
	}
	if resp.Response == "" {
		return nil, false, nil
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Response)
	if err != nil {
		return nil, false, fmt.Errorf("decode pairing response: %w", err)
	}
	return raw, true, nil
}

// FetchStatus fetches the host agent's coarse status.
func (c *Client) FetchStatus(ctx context.Context) (*wire.StatusResponse, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/status", nil)
	if err != nil {
		return nil, err
	}
	var resp wire.StatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse status: %w", err)
	}
	return &resp, nil
}

// GetSessions fetches one page of the session list, most-recent-first.
func (c *Client) GetSessions(ctx context.Context, limit, offset int) (*wire.ListSessionsResponse, error) {
	endpoint := "/v1/sessions"
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		values.Set("offset", strconv.Itoa(offset))
	}
	if len(values) > 0 {
		endpoint += "?" + values.Encode()
	}

	body, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var resp wire.ListSessionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse sessions: %w", err)
	}
	return &resp, nil
}

// GetSessionMessages fetches one history page for a session, newest-first.
func (c *Client) GetSessionMessages(ctx context.Context, sessionID string, limit, offset int) (*wire.SessionMessagesResponse, error) {
	endpoint := "/v1/sessions/" + url.PathEscape(sessionID) + "/messages"
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		values.Set("offset", strconv.Itoa(offset))
	}
	if len(values) > 0 {
		endpoint += "?" + values.Encode()
	}

	body, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var resp wire.SessionMessagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}
	return &resp, nil
}

// DeleteSession removes one session server-side.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(sessionID), nil)
	return err
}

// DeleteAllSessions removes every session for the account.
func (c *Client) DeleteAllSessions(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/v1/sessions", nil)
	return err
}

// StopAgent interrupts the active turn of a session.
func (c *Client) StopAgent(ctx context.Context, sessionID string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/stop", nil)
	return err
}

// Run submits a prompt, either starting a new managed session or resuming an
// existing one.
func (c *Client) Run(ctx context.Context, req *wire.RunRequest) (*wire.RunResponse, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/v1/run", req)
	if err != nil {
		return nil, err
	}
	var resp wire.RunResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse run response: %w", err)
	}
	return &resp, nil
}

// PermissionResponse answers a pending tool-permission request.
func (c *Client) PermissionResponse(ctx context.Context, req *wire.PermissionResponseRequest) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/v1/permission", req)
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	if c.serverURL == "" {
		return nil, fmt.Errorf("server URL not set")
	}

	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger.Tracef("api: %s %s", method, path)
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return respBody, nil
	}

	logger.Debugf("api: %s %s -> %d", method, path, httpResp.StatusCode)
	switch httpResp.StatusCode {
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrSessionNotFound)
	case http.StatusConflict:
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrAlreadyRunning)
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	return nil, fmt.Errorf("%s %s: status %d: %s", method, path, httpResp.StatusCode, string(respBody))
}
