// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wneessen/location-picker/internal/logger"
)

// Prompter asks the user for a decision.
type Prompter interface {
	Prompt(ctx context.Context) (bool, error)
}

// Store holds the decision between runs.
type Store interface {
	Load() (Status, error)
	Save(Status) error
}

// Manager is the Service used by the application. A configured override wins over the stored
// decision and is never written back.
type Manager struct {
	mu       sync.Mutex
	store    Store
	prompter Prompter
	override Status
	logger   *logger.Logger
}

func NewManager(log *logger.Logger, store Store, prompter Prompter, override Status) (*Manager, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if store == nil {
		return nil, errors.New("permission store is required")
	}
	if prompter == nil {
		return nil, errors.New("permission prompter is required")
	}
	return &Manager{store: store, prompter: prompter, override: override, logger: log}, nil
}

func (m *Manager) Status(context.Context) (Status, error) {
	if m.override != Undetermined {
		return m.override, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Load()
}

// Request prompts the user and stores the answer.
func (m *Manager) Request(ctx context.Context) (Response, error) {
	if m.override != Undetermined {
		return Response{Granted: m.override == Granted}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	granted, err := m.prompter.Prompt(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("failed to prompt for location permission: %w", err)
	}
	status := Denied
	if granted {
		status = Granted
	}
	if err = m.store.Save(status); err != nil {
		m.logger.Warn("failed to persist location permission", logger.Err(err))
	}
	m.logger.Info("location permission decided", slog.String("status", status.String()))
	return Response{Granted: granted}, nil
}
