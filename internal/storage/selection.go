package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lookout-sh/lookout/internal/crypto"
)

// SelectedSession is the durable record of which session a workspace was last
// attached to. It lives under LookoutHome and is machine-local.
type SelectedSession struct {
	// SessionID is the server-generated session id.
	SessionID string `json:"sessionId"`
	// Workspace is the absolute workspace path the selection belongs to.
	Workspace string `json:"workspace"`
	// UpdatedAtMs is the wall-clock timestamp of the most recent write.
	UpdatedAtMs int64 `json:"updatedAtMs,omitempty"`
}

// LoadSelectedSession reads the persisted selection for a workspace. A
// non-nil key means the record is secretbox-sealed on disk.
//
// ok is false when no selection exists.
func LoadSelectedSession(lookoutHome, workspace string, key *[32]byte) (sel SelectedSession, ok bool, err error) {
	path, err := selectionPath(lookoutHome, workspace)
	if err != nil {
		return SelectedSession{}, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return SelectedSession{}, false, nil
		}
		return SelectedSession{}, false, err
	}
	if key != nil {
		if err := crypto.Decrypt(data, key, &sel); err != nil {
			return SelectedSession{}, false, err
		}
		return sel, true, nil
	}
	if err := json.Unmarshal(data, &sel); err != nil {
		return SelectedSession{}, false, err
	}
	return sel, true, nil
}

// SaveSelectedSession writes the selection atomically (tmp file + rename) so
// a crash mid-write never leaves a torn record behind. A non-nil key seals
// the record with secretbox before writing.
func SaveSelectedSession(lookoutHome string, sel SelectedSession, key *[32]byte) error {
	if strings.TrimSpace(sel.SessionID) == "" {
		return fmt.Errorf("missing session id")
	}
	path, err := selectionPath(lookoutHome, sel.Workspace)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	sel.UpdatedAtMs = time.Now().UnixMilli()
	var raw []byte
	if key != nil {
		raw, err = crypto.Encrypt(sel, key)
	} else {
		raw, err = json.Marshal(sel)
	}
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ClearSelectedSession removes the persisted selection for a workspace.
// Clearing an absent selection is not an error.
func ClearSelectedSession(lookoutHome, workspace string) error {
	path, err := selectionPath(lookoutHome, workspace)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// selectionPath returns the absolute path for a workspace's selection record.
// Workspace paths are hashed so arbitrary directory names stay out of the
// storage layout.
func selectionPath(lookoutHome, workspace string) (string, error) {
	if strings.TrimSpace(lookoutHome) == "" {
		return "", fmt.Errorf("missing lookout home")
	}
	workspace = strings.TrimSpace(workspace)
	if workspace == "" {
		return "", fmt.Errorf("missing workspace")
	}
	sum := sha256.Sum256([]byte(filepath.Clean(workspace)))
	name := hex.EncodeToString(sum[:8]) + ".json"
	return filepath.Join(lookoutHome, "selections", name), nil
}
