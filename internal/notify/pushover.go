// Package notify pushes attention alerts to the operator's phone. The client
// is headless most of the time; when the agent blocks on a permission
// decision or hits an error, a Pushover message is the only signal the
// operator gets.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	pushoverEndpoint = "https://api.pushover.net/1/messages.json"

	// maxBodyLen is Pushover's message size limit.
	maxBodyLen = 1024

	httpTimeout = 10 * time.Second
)

// Pushover delivers throttled attention alerts through the Pushover API.
// Alerts sharing a key are collapsed: only the first one inside the throttle
// window is delivered.
type Pushover struct {
	token    string
	userKey  string
	throttle time.Duration
	endpoint string

	client *http.Client

	mu       sync.Mutex
	lastPush map[string]time.Time
}

// NewPushover creates an alert sender. A zero throttle delivers every alert.
func NewPushover(token, userKey string, throttle time.Duration) (*Pushover, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(userKey) == "" {
		return nil, fmt.Errorf("pushover token and user key are required")
	}
	if throttle < 0 {
		return nil, fmt.Errorf("negative throttle")
	}
	return &Pushover{
		token:    token,
		userKey:  userKey,
		throttle: throttle,
		endpoint: pushoverEndpoint,
		client:   &http.Client{Timeout: httpTimeout},
		lastPush: make(map[string]time.Time),
	}, nil
}

// Push sends an alert unless another alert with the same key was delivered
// inside the throttle window. A suppressed alert is not an error.
func (p *Pushover) Push(ctx context.Context, key, title, body string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("alert key is required")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return fmt.Errorf("alert body is required")
	}
	body = truncate(body, maxBodyLen)

	if !p.claim(key) {
		return nil
	}
	if err := p.send(ctx, title, body); err != nil {
		p.release(key)
		return err
	}
	return nil
}

// truncate shortens s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// claim reserves the throttle slot for key. The slot is reserved before the
// HTTP call so concurrent pushes for the same key cannot both fire.
func (p *Pushover) claim(key string) bool {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.throttle > 0 {
		if last, ok := p.lastPush[key]; ok && now.Sub(last) < p.throttle {
			return false
		}
		// Drop entries old enough that they can no longer suppress anything.
		for k, t := range p.lastPush {
			if now.Sub(t) >= p.throttle {
				delete(p.lastPush, k)
			}
		}
	}
	p.lastPush[key] = now
	return true
}

func (p *Pushover) release(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.lastPush, key)
}

func (p *Pushover) send(ctx context.Context, title, body string) error {
	form := url.Values{}
	form.Set("token", p.token)
	form.Set("user", p.userKey)
	form.Set("message", body)
	if title = strings.TrimSpace(title); title != "" {
		form.Set("title", title)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read pushover response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("pushover %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}
