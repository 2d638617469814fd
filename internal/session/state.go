package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	stateDir  = ".ragline"
	stateFile = "current_session"
)

// stateFilePath returns the path to ~/.ragline/current_session,
// creating the state directory if needed.
func stateFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}

	return filepath.Join(dir, stateFile), nil
}

// LoadCurrentSessionID reads the active session ID from the local state
// file. Returns (nil, nil) when no current session exists.
func LoadCurrentSessionID() (*uuid.UUID, error) {
	path, err := stateFilePath()
	if err != nil {
		return nil, err
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryRLock()
	if err != nil {
		return nil, fmt.Errorf("locking state file: %w", err)
	}
	if !locked {
		return nil, errors.New("session state is locked by another process")
	}
	defer lock.Unlock() //nolint:errcheck

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return nil, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid session ID in state file: %w", err)
	}
	return &id, nil
}

// SaveCurrentSessionID records the active session ID in the local state
// file. The write is atomic (temp file + rename) so a concurrent reader
// never observes a partial ID.
func SaveCurrentSessionID(sessionID uuid.UUID) error {
	path, err := stateFilePath()
	if err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("locking state file: %w", err)
	}
	if !locked {
		return errors.New("session state is locked by another process")
	}
	defer lock.Unlock() //nolint:errcheck

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sessionID.String()+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// ClearCurrentSessionID removes the state file. Idempotent.
func ClearCurrentSessionID() error {
	path, err := stateFilePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}
