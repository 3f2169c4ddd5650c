// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package navigation hosts the screens of the application. The picker screen hands off to the map
// screen and is told when it becomes visible again and which route params it was given.
package navigation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/wneessen/location-picker/internal/logger"
)

// ScreenMap is the name of the map selection screen.
const ScreenMap = "Map"

var (
	ErrNoScreen       = errors.New("no screen name given")
	ErrNoActiveScreen = errors.New("no screen is active on top of the picker")
)

// Params are the route params a screen returns with. Every return creates params with a new ID,
// even for identical coordinates.
type Params struct {
	ID  uuid.UUID
	Lat float64
	Lon float64
}

// Event describes the visibility of the picker screen and the route params it currently holds.
type Event struct {
	Visible bool
	Params  *Params
}

// Navigator opens other screens on top of the picker.
type Navigator interface {
	GoTo(ctx context.Context, screen string) error
}

// Router is an in-memory Navigator with a single level of screens on top of the picker.
type Router struct {
	mu      sync.RWMutex
	logger  *logger.Logger
	active  string
	visible bool
	params  *Params
	subs    map[chan Event]struct{}
}

// NewRouter returns a Router with the picker screen visible and no params.
func NewRouter(log *logger.Logger) *Router {
	return &Router{
		logger:  log,
		visible: true,
		subs:    make(map[chan Event]struct{}),
	}
}

// GoTo opens screen on top of the picker, which hides the picker.
func (r *Router) GoTo(ctx context.Context, screen string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if screen == "" {
		return ErrNoScreen
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = screen
	r.logger.Debug("navigating", slog.String("screen", screen))
	r.setVisibleLocked(false)
	return nil
}

// Return closes the active screen and hands the chosen coordinates back to the picker. The
// picker always sees the return as becoming visible with fresh params.
func (r *Router) Return(lat, lon float64) (Params, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == "" {
		return Params{}, ErrNoActiveScreen
	}

	// Params are only taken on a hidden to visible change. A picker that was shown while the screen
	// was still open is hidden first.
	r.active = ""
	r.setVisibleLocked(false)
	params := Params{ID: uuid.New(), Lat: lat, Lon: lon}
	r.params = &params
	r.visible = true
	r.broadcastLocked()
	return params, nil
}

// Back closes the active screen without a choice. Params of an earlier return stay in place.
func (r *Router) Back() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == "" {
		return ErrNoActiveScreen
	}
	r.active = ""
	r.setVisibleLocked(true)
	return nil
}

// SetVisible changes the visibility of the picker screen, e.g. when the app loses focus.
func (r *Router) SetVisible(visible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setVisibleLocked(visible)
}

// Current returns the current visibility and params.
func (r *Router) Current() Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.eventLocked()
}

// ActiveScreen returns the screen on top of the picker or an empty string.
func (r *Router) ActiveScreen() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Subscribe returns a channel that receives every visibility change, primed with the current
// state, and a function to unsubscribe. Events are dropped for subscribers whose buffer is full.
func (r *Router) Subscribe(size int) (<-chan Event, func()) {
	ch := make(chan Event, max(size, 1))
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	ch <- r.eventLocked()
	r.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, ch)
			r.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

func (r *Router) setVisibleLocked(visible bool) {
	if r.visible == visible {
		return
	}
	r.visible = visible
	r.broadcastLocked()
}

func (r *Router) broadcastLocked() {
	event := r.eventLocked()
	for ch := range r.subs {
		select {
		case ch <- event:
		default:
			r.logger.Warn("navigation subscriber is not keeping up, dropping event")
		}
	}
}

func (r *Router) eventLocked() Event {
	event := Event{Visible: r.visible}
	if r.params != nil {
		params := *r.params
		event.Params = &params
	}
	return event
}
