// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vorlif/spreak"

	"github.com/wneessen/location-picker/internal/alert"
	"github.com/wneessen/location-picker/internal/i18n"
	"github.com/wneessen/location-picker/internal/logger"
)

var (
	// ErrPermissionDenied is returned when location access was refused.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrPermissionRequestFailed is returned when the permission request itself errored.
	ErrPermissionRequestFailed = errors.New("location permission request failed")
)

// Gate runs the check-then-request sequence before device location access.
type Gate struct {
	service   Service
	alerter   alert.Alerter
	localizer *spreak.Localizer
	logger    *logger.Logger
}

func NewGate(log *logger.Logger, service Service, alerter alert.Alerter, loc *spreak.Localizer) (*Gate, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if service == nil {
		return nil, errors.New("permission service is required")
	}
	if alerter == nil {
		return nil, errors.New("alerter is required")
	}
	if loc == nil {
		return nil, errors.New("localizer is required")
	}
	return &Gate{service: service, alerter: alerter, localizer: loc, logger: log}, nil
}

// Verify returns nil if location access is granted. An undetermined status is requested exactly
// once. Every refusal, including failed status reads and requests, shows the denial alert and
// returns an error wrapping ErrPermissionDenied.
func (g *Gate) Verify(ctx context.Context) error {
	status, err := g.service.Status(ctx)
	if err != nil {
		return g.deny(ctx, fmt.Errorf("%w: %w: %w", ErrPermissionDenied, ErrPermissionRequestFailed, err))
	}

	switch status {
	case Granted:
		return nil
	case Undetermined:
		resp, err := g.service.Request(ctx)
		if err != nil {
			return g.deny(ctx, fmt.Errorf("%w: %w: %w", ErrPermissionDenied, ErrPermissionRequestFailed, err))
		}
		if resp.Granted {
			return nil
		}
	}
	return g.deny(ctx, ErrPermissionDenied)
}

func (g *Gate) deny(ctx context.Context, err error) error {
	g.logger.Debug("location access refused", logger.Err(err))
	title := g.localizer.Get(i18n.PermissionDeniedTitle)
	message := g.localizer.Get(i18n.PermissionDeniedMessage)
	if alertErr := g.alerter.Alert(ctx, title, message); alertErr != nil {
		g.logger.Error("failed to show permission alert", logger.Err(alertErr), slog.String("title", title))
	}
	return err
}
