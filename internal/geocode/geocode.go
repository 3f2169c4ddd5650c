// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/wneessen/location-picker/internal/geo"
)

var (
	// ErrResolutionUnavailable is returned when coordinates could not be turned into an address.
	ErrResolutionUnavailable = errors.New("address resolution unavailable")
	// ErrSearchUnsupported is returned by geocoders that only support reverse lookups.
	ErrSearchUnsupported = errors.New("geocoder does not support search")
)

type Address struct {
	AddressFound bool
	CacheHit     bool
	Latitude     float64
	Longitude    float64
	DisplayName  string
	Country      string
	State        string
	Municipality string
	CityDistrict string
	Postcode     string
	City         string
	Suburb       string
	Street       string
	HouseNumber  string
}

// Geocoder resolves coordinates into an Address.
type Geocoder interface {
	Name() string
	Reverse(ctx context.Context, coords geo.Coordinate) (Address, error)
}

// Searcher resolves a free-form place query into coordinates.
type Searcher interface {
	Search(ctx context.Context, query string) (geo.Coordinate, error)
}

// String returns the display name of the address or, if the provider did not deliver one,
// a short form built from its components.
func (a Address) String() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	var parts []string
	street := strings.TrimSpace(a.Street + " " + a.HouseNumber)
	city := strings.TrimSpace(a.Postcode + " " + a.City)
	for _, part := range []string{street, city, a.Country} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}
