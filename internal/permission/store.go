// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package permission

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// FileStore persists the permission decision in a TOML file.
type FileStore struct {
	path string
}

type stateFile struct {
	Location struct {
		Status    Status    `toml:"status"`
		DecidedAt time.Time `toml:"decided_at"`
	} `toml:"location"`
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns the stored status. A missing state file means no decision was made yet.
func (s *FileStore) Load() (Status, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Undetermined, nil
	}
	if err != nil {
		return Undetermined, fmt.Errorf("failed to read permission state: %w", err)
	}

	var state stateFile
	if err = toml.Unmarshal(data, &state); err != nil {
		return Undetermined, fmt.Errorf("failed to parse permission state %q: %w", s.path, err)
	}
	return state.Location.Status, nil
}

func (s *FileStore) Save(status Status) error {
	var state stateFile
	state.Location.Status = status
	state.Location.DecidedAt = time.Now().UTC().Truncate(time.Second)

	data, err := toml.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode permission state: %w", err)
	}
	if err = os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create permission state directory: %w", err)
	}
	if err = os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write permission state: %w", err)
	}
	return nil
}
