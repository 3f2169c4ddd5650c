// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package locate reads the current position of the device from one or more location sources.
package locate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wneessen/location-picker/internal/geo"
	"github.com/wneessen/location-picker/internal/logger"
)

var (
	// ErrLocationUnavailable is returned when no location source could deliver a position.
	ErrLocationUnavailable = errors.New("location unavailable")
	// ErrNoFix is returned by providers that are reachable but have no usable position yet.
	ErrNoFix = errors.New("no position fix")
)

// Locator defines an interface for sources of the current device position.
type Locator interface {
	Name() string
	CurrentPosition(ctx context.Context) (geo.Coordinate, error)
}

// Chain asks its locators in order and returns the first valid position.
type Chain struct {
	locators []Locator
	logger   *logger.Logger
}

// NewChain returns a Chain over the given locators. The order of the locators is their priority.
func NewChain(log *logger.Logger, locators ...Locator) (*Chain, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if len(locators) == 0 {
		return nil, errors.New("at least one locator is required")
	}
	return &Chain{locators: locators, logger: log}, nil
}

func (c *Chain) Name() string {
	return "chain"
}

// CurrentPosition returns the position of the first locator that succeeds. If all of them fail,
// the returned error wraps ErrLocationUnavailable and every individual failure.
func (c *Chain) CurrentPosition(ctx context.Context) (geo.Coordinate, error) {
	var errs []error
	for _, locator := range c.locators {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		coord, err := locator.CurrentPosition(ctx)
		if err != nil {
			c.logger.Debug("location source failed", slog.String("source", locator.Name()), logger.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", locator.Name(), err))
			continue
		}
		if !coord.Valid() {
			c.logger.Debug("location source returned invalid coordinates", slog.String("source", locator.Name()),
				slog.String("coordinates", coord.String()))
			errs = append(errs, fmt.Errorf("%s: invalid coordinates %s", locator.Name(), coord))
			continue
		}

		c.logger.Debug("current position determined", slog.String("source", locator.Name()),
			slog.Float64("lat", coord.Lat), slog.Float64("lon", coord.Lon), slog.Float64("acc", coord.Acc))
		return coord, nil
	}
	return geo.Coordinate{}, fmt.Errorf("%w: %w", ErrLocationUnavailable, errors.Join(errs...))
}
