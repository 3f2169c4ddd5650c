// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package permission decides whether the device location may be read. It checks the stored
// decision, asks the user once if there is none and refuses with an alert otherwise.
package permission

import (
	"context"
	"fmt"
	"strings"
)

// Status is the current authorization for device location access.
type Status int

const (
	Undetermined Status = iota
	Granted
	Denied
)

func (s Status) String() string {
	switch s {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "undetermined"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "granted":
		*s = Granted
	case "denied":
		*s = Denied
	case "undetermined", "":
		*s = Undetermined
	default:
		return fmt.Errorf("unknown permission status: %q", string(text))
	}
	return nil
}

// Response is the outcome of a permission request.
type Response struct {
	Granted bool
}

// Service reads and requests the location permission.
type Service interface {
	Status(ctx context.Context) (Status, error)
	Request(ctx context.Context) (Response, error)
}
