// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package picker holds the current location selection. Coordinates come from the device or from
// the map screen; every new selection is resolved to an address in the background and reported on
// the Selections channel once resolution settled.
package picker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vorlif/spreak"

	"github.com/wneessen/location-picker/internal/alert"
	"github.com/wneessen/location-picker/internal/geo"
	"github.com/wneessen/location-picker/internal/geocode"
	"github.com/wneessen/location-picker/internal/i18n"
	"github.com/wneessen/location-picker/internal/locate"
	"github.com/wneessen/location-picker/internal/logger"
	"github.com/wneessen/location-picker/internal/navigation"
)

const (
	DefaultLocateTimeout  = time.Second * 15
	DefaultResolveTimeout = time.Second * 10
	DefaultBuffer         = 8
)

// ErrClosed is returned by operations on a closed Picker.
var ErrClosed = errors.New("picker is closed")

// Gate decides whether the device location may be read.
type Gate interface {
	Verify(ctx context.Context) error
}

type Config struct {
	LocateTimeout  time.Duration
	ResolveTimeout time.Duration
	Buffer         int
}

// Deps are the collaborators of a Picker. All of them are required.
type Deps struct {
	Gate      Gate
	Locator   locate.Locator
	Geocoder  geocode.Geocoder
	Navigator navigation.Navigator
	Alerter   alert.Alerter
	Localizer *spreak.Localizer
}

type Picker struct {
	mu            sync.Mutex
	state         State
	current       Selection
	generation    uint64
	cancelResolve context.CancelFunc
	visible       bool
	lastParamsID  uuid.UUID
	closed        bool

	// reportMu is held from the generation check until the report was sent.
	reportMu sync.Mutex
	out      chan Selection
	done     chan struct{}
	wg       sync.WaitGroup

	conf   Config
	deps   Deps
	logger *logger.Logger
}

func New(log *logger.Logger, conf Config, deps Deps) (*Picker, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	switch {
	case deps.Gate == nil:
		return nil, errors.New("permission gate is required")
	case deps.Locator == nil:
		return nil, errors.New("locator is required")
	case deps.Geocoder == nil:
		return nil, errors.New("geocoder is required")
	case deps.Navigator == nil:
		return nil, errors.New("navigator is required")
	case deps.Alerter == nil:
		return nil, errors.New("alerter is required")
	case deps.Localizer == nil:
		return nil, errors.New("localizer is required")
	}
	if conf.LocateTimeout <= 0 {
		conf.LocateTimeout = DefaultLocateTimeout
	}
	if conf.ResolveTimeout <= 0 {
		conf.ResolveTimeout = DefaultResolveTimeout
	}
	if conf.Buffer <= 0 {
		conf.Buffer = DefaultBuffer
	}

	return &Picker{
		out:    make(chan Selection, conf.Buffer),
		done:   make(chan struct{}),
		conf:   conf,
		deps:   deps,
		logger: log,
	}, nil
}

// Selections returns the channel resolved selections are reported on. It is closed by Close.
func (p *Picker) Selections() <-chan Selection {
	return p.out
}

func (p *Picker) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Current returns the current selection and whether there is one.
func (p *Picker) Current() (Selection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.state != NoSelection
}

// Locate reads the device position after the permission gate allowed it and makes it the current
// selection. A refused permission leaves the selection untouched. A failed read is shown to the
// user and returned wrapping locate.ErrLocationUnavailable.
func (p *Picker) Locate(ctx context.Context) error {
	if p.isClosed() {
		return ErrClosed
	}
	if err := p.deps.Gate.Verify(ctx); err != nil {
		return err
	}

	ctxLocate, cancelLocate := context.WithTimeout(ctx, p.conf.LocateTimeout)
	defer cancelLocate()
	coord, err := p.deps.Locator.CurrentPosition(ctxLocate)
	if err == nil && !coord.Valid() {
		err = fmt.Errorf("invalid coordinates %s", coord)
	}
	if err != nil {
		if !errors.Is(err, locate.ErrLocationUnavailable) {
			err = fmt.Errorf("%w: %w", locate.ErrLocationUnavailable, err)
		}
		p.logger.Warn("failed to read device position", logger.Err(err))
		title := p.deps.Localizer.Get(i18n.LocationFailedTitle)
		message := p.deps.Localizer.Get(i18n.LocationFailedMessage)
		if alertErr := p.deps.Alerter.Alert(ctx, title, message); alertErr != nil {
			p.logger.Error("failed to show location alert", logger.Err(alertErr))
		}
		return err
	}

	return p.selectCoordinate(ctx, coord, SourceDevice)
}

// PickOnMap opens the map screen. The choice comes back through the navigation events handed to
// Watch.
func (p *Picker) PickOnMap(ctx context.Context) error {
	if p.isClosed() {
		return ErrClosed
	}
	if err := p.deps.Navigator.GoTo(ctx, navigation.ScreenMap); err != nil {
		return fmt.Errorf("failed to open map screen: %w", err)
	}
	return nil
}

// Watch applies navigation events until ctx is done, events is closed or the picker is closed.
// Coordinates are taken from an event only when the picker becomes visible and the params were
// not applied before.
func (p *Picker) Watch(ctx context.Context, events <-chan navigation.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return ErrClosed
		case event, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ctx, event)
		}
	}
}

func (p *Picker) handleEvent(ctx context.Context, event navigation.Event) {
	p.mu.Lock()
	rising := event.Visible && !p.visible
	p.visible = event.Visible
	if !rising || event.Params == nil || event.Params.ID == p.lastParamsID {
		p.mu.Unlock()
		return
	}
	p.lastParamsID = event.Params.ID
	p.mu.Unlock()

	coord := geo.Coordinate{Lat: event.Params.Lat, Lon: event.Params.Lon}
	if !coord.Valid() {
		p.logger.Warn("ignoring invalid coordinates from map screen", slog.String("coordinates", coord.String()))
		return
	}
	if err := p.selectCoordinate(ctx, coord, SourceMap); err != nil {
		p.logger.Debug("failed to apply map selection", logger.Err(err))
	}
}

// selectCoordinate replaces the current selection and starts its resolution. Any resolution still
// running for an older selection is canceled and its result discarded.
func (p *Picker) selectCoordinate(ctx context.Context, coord geo.Coordinate, source Source) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.cancelResolve != nil {
		p.cancelResolve()
	}
	p.generation++
	generation := p.generation
	selection := Selection{Coordinate: coord, Source: source}
	p.current = selection
	p.state = SelectionPending

	ctxResolve, cancelResolve := context.WithTimeout(context.WithoutCancel(ctx), p.conf.ResolveTimeout)
	p.cancelResolve = cancelResolve
	p.wg.Add(1)
	p.mu.Unlock()

	p.logger.Debug("selection pending", slog.String("source", source.String()),
		slog.Float64("lat", coord.Lat), slog.Float64("lon", coord.Lon))
	go p.resolve(ctxResolve, cancelResolve, generation, selection)
	return nil
}

func (p *Picker) resolve(ctx context.Context, cancel context.CancelFunc, generation uint64, selection Selection) {
	defer p.wg.Done()
	defer cancel()

	addr, err := p.deps.Geocoder.Reverse(ctx, selection.Coordinate)
	selection.ResolvedAt = time.Now()
	switch {
	case err != nil:
		p.logger.Warn("failed to resolve address", logger.Err(fmt.Errorf("%w: %w", geocode.ErrResolutionUnavailable, err)),
			slog.String("coordinates", selection.Coordinate.String()))
	case !addr.AddressFound:
		p.logger.Info("no address found for selection", slog.String("coordinates", selection.Coordinate.String()))
	default:
		selection.Address = addr.String()
		selection.Details = addr
		selection.Resolved = true
	}

	p.reportMu.Lock()
	defer p.reportMu.Unlock()
	p.mu.Lock()
	if generation != p.generation || p.closed {
		p.mu.Unlock()
		p.logger.Debug("discarding superseded resolution", slog.String("coordinates", selection.Coordinate.String()))
		return
	}
	p.current = selection
	p.state = SelectionResolved
	p.cancelResolve = nil
	p.mu.Unlock()

	// A free buffer slot always wins, so Close does not drop a settled selection.
	select {
	case p.out <- selection:
		return
	default:
	}
	select {
	case p.out <- selection:
	case <-p.done:
	}
}

// Close cancels a running resolution, waits for it to end and closes the Selections channel.
func (p *Picker) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.cancelResolve != nil {
		p.cancelResolve()
		p.cancelResolve = nil
	}
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
	close(p.out)
	return nil
}

func (p *Picker) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
