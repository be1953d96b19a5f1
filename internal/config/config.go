package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Defaults for the tunables below.
const (
	DefaultMaxCacheElements  = 500
	DefaultSessionSearch     = 100
	DefaultHistoryPageSize   = 20
	DefaultDebounceWindow    = 100 * time.Millisecond
	DefaultWatchAckTimeout   = 10 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
)

type Config struct {
	// ServerURL is the base URL of the Lookout server API.
	ServerURL string

	// LookoutHome is the directory where Lookout stores local state.
	LookoutHome string
	// AccessKey is the path to the access key file.
	AccessKey string

	// Debug enables verbose logging.
	Debug bool
	// ForceNewSession forces creating a new session on every prompt.
	ForceNewSession bool

	// MaxCacheElements bounds the per-session element cache.
	MaxCacheElements int
	// SessionSearchLimit bounds how many sessions a single lookup pages
	// through when validating a persisted selection.
	SessionSearchLimit int
	// HistoryPageSize is the number of messages fetched per history page.
	HistoryPageSize int
	// DebounceWindow is the quiet period before a burst of real-time events
	// triggers one reconciliation pass.
	DebounceWindow time.Duration
	// WatchAckTimeout bounds the server ack wait for watch RPCs.
	WatchAckTimeout time.Duration
	// RequestTimeout bounds individual HTTP API requests.
	RequestTimeout time.Duration

	// PushoverToken and PushoverUserKey enable push notifications for
	// permission requests when both are set.
	PushoverToken   string
	PushoverUserKey string
}

// Load loads configuration from environment and defaults
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	lookoutHome := os.Getenv("LOOKOUT_HOME_DIR")
	if lookoutHome == "" {
		lookoutHome = filepath.Join(homeDir, ".lookout")
	}

	// Ensure lookout home exists
	if err := os.MkdirAll(lookoutHome, 0700); err != nil {
		return nil, fmt.Errorf("failed to create lookout home: %w", err)
	}

	serverURL := os.Getenv("LOOKOUT_SERVER_URL")
	if serverURL == "" {
		serverURL = "https://api.lookout.sh"
	}

	debug := boolEnv("DEBUG") || boolEnv("LOOKOUT_DEBUG")

	cfg := &Config{
		ServerURL:          serverURL,
		LookoutHome:        lookoutHome,
		AccessKey:          filepath.Join(lookoutHome, "access.key"),
		Debug:              debug,
		ForceNewSession:    boolEnv("LOOKOUT_FORCE_NEW_SESSION"),
		MaxCacheElements:   intEnv("LOOKOUT_MAX_CACHE_ELEMENTS", DefaultMaxCacheElements),
		SessionSearchLimit: intEnv("LOOKOUT_SESSION_SEARCH_LIMIT", DefaultSessionSearch),
		HistoryPageSize:    intEnv("LOOKOUT_HISTORY_PAGE_SIZE", DefaultHistoryPageSize),
		DebounceWindow:     durationEnv("LOOKOUT_DEBOUNCE_WINDOW", DefaultDebounceWindow),
		WatchAckTimeout:    durationEnv("LOOKOUT_WATCH_ACK_TIMEOUT", DefaultWatchAckTimeout),
		RequestTimeout:     durationEnv("LOOKOUT_REQUEST_TIMEOUT", DefaultRequestTimeout),
		PushoverToken:      os.Getenv("LOOKOUT_PUSHOVER_TOKEN"),
		PushoverUserKey:    os.Getenv("LOOKOUT_PUSHOVER_USER"),
	}
	if cfg.SessionSearchLimit <= 0 {
		return nil, fmt.Errorf("invalid LOOKOUT_SESSION_SEARCH_LIMIT %d", cfg.SessionSearchLimit)
	}
	if cfg.HistoryPageSize <= 0 {
		return nil, fmt.Errorf("invalid LOOKOUT_HISTORY_PAGE_SIZE %d", cfg.HistoryPageSize)
	}
	return cfg, nil
}

// Save saves configuration to disk (currently just creates directories)
func (c *Config) Save() error {
	return os.MkdirAll(c.LookoutHome, 0700)
}

func boolEnv(key string) bool {
	v := os.Getenv(key)
	return v == "true" || v == "1"
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
