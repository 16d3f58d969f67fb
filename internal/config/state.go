package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// State is the small amount of runtime state persisted across
// restarts, so an unchanged calendar is not re-published after every
// deployment.
type State struct {
	// Token is the last freshness token that was successfully published.
	Token string `yaml:"token" json:"token"`
	// UpdatedAt is when Token was last written.
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// LoadState reads the state file. A missing file returns an empty
// state, not an error.
func LoadState(path string) (*State, error) {
	if path == "" {
		return &State{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &State{}, nil
		}
		return nil, err
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveState writes the state file atomically with 0600 perms.
func SaveState(path string, st *State) error {
	if path == "" {
		return errors.New("state path is empty")
	}
	if st == nil {
		return errors.New("state is nil")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calpost-state-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
