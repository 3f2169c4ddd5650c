// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package picker

import (
	"fmt"
	"time"

	"github.com/wneessen/location-picker/internal/geo"
	"github.com/wneessen/location-picker/internal/geocode"
)

// State is the state of the picker's current selection.
type State int

const (
	NoSelection State = iota
	SelectionPending
	SelectionResolved
)

func (s State) String() string {
	switch s {
	case SelectionPending:
		return "pending"
	case SelectionResolved:
		return "resolved"
	default:
		return "none"
	}
}

// Source tells where the coordinates of a selection came from.
type Source int

const (
	SourceDevice Source = iota
	SourceMap
)

func (s Source) String() string {
	if s == SourceMap {
		return "map"
	}
	return "device"
}

func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Source) UnmarshalText(text []byte) error {
	switch string(text) {
	case "device":
		*s = SourceDevice
	case "map":
		*s = SourceMap
	default:
		return fmt.Errorf("unknown selection source: %q", string(text))
	}
	return nil
}

// Selection is a chosen position and, once resolution settled, its address. Resolved is false if
// no address could be found for the coordinates.
type Selection struct {
	Coordinate geo.Coordinate
	Address    string
	Details    geocode.Address
	Resolved   bool
	Source     Source
	ResolvedAt time.Time
}
