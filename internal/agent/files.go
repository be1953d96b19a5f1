// Package agent manages the host-side terminal agent: locating its
// per-project session files, spawning it under a PTY, and probing for live
// processes when a stored session id goes stale.
package agent

import (
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var projectPathSanitizer = regexp.MustCompile(`[\\\/\.:]`)

// projectDir returns the directory where the agent stores per-project session
// files, based on the configured agent config root (or the default).
func projectDir(workspace string) string {
	configDir := os.Getenv("CLAUDE_CONFIG_DIR")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".claude")
	}
	projectID := projectPathSanitizer.ReplaceAllString(filepath.Clean(workspace), "-")
	return filepath.Join(configDir, "projects", projectID)
}

// SessionFilePath returns the path to a session's JSONL transcript.
// Format: <config-dir>/projects/<project-id>/<session-id>.jsonl
func SessionFilePath(workspace, sessionID string) string {
	return filepath.Join(projectDir(workspace), sessionID+".jsonl")
}

// VerifySessionFile checks whether a session file exists for the given id.
// A missing file means the stored id is stale even if a live process still
// serves the same logical session under a different id.
func VerifySessionFile(workspace, sessionID string) bool {
	_, err := os.Stat(SessionFilePath(workspace, sessionID))
	return err == nil
}

// WaitForSessionFile waits for a session file to appear, with timeout.
func WaitForSessionFile(workspace, sessionID string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if VerifySessionFile(workspace, sessionID) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
