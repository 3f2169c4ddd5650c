// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/location-picker/internal/geo"
	"github.com/wneessen/location-picker/internal/http"
)

const (
	DefaultEndpoint = "https://reallyfreegeoip.org/json/"
	LookupTimeout   = time.Second * 5
	name            = "geoip"
)

// GeolocationGeoIPProvider estimates the position from the public IP address. The accuracy depends
// on how detailed the lookup result is.
type GeolocationGeoIPProvider struct {
	name     string
	http     *http.Client
	endpoint string
}

type APIResult struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country_name"`
	RegionCode  string  `json:"region_code,omitempty"`
	Region      string  `json:"region_name,omitempty"`
	City        string  `json:"city,omitempty"`
	ZipCode     string  `json:"zip_code,omitempty"`
	TimeZone    string  `json:"time_zone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	MetroCode   int     `json:"metro_code"`
}

func NewGeolocationGeoIPProvider(client *http.Client, endpoint string) (*GeolocationGeoIPProvider, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &GeolocationGeoIPProvider{
		name:     name,
		http:     client,
		endpoint: endpoint,
	}, nil
}

func (p *GeolocationGeoIPProvider) Name() string {
	return p.name
}

func (p *GeolocationGeoIPProvider) CurrentPosition(ctx context.Context) (geo.Coordinate, error) {
	result := new(APIResult)
	code, err := p.http.GetWithTimeout(ctx, p.endpoint, result, nil, nil, LookupTimeout)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
	if code != 200 {
		return geo.Coordinate{}, fmt.Errorf("geolocation API returned HTTP status %d", code)
	}
	if result.CountryCode == "" && result.Latitude == 0 && result.Longitude == 0 {
		return geo.Coordinate{}, fmt.Errorf("no location known for IP %q", result.IP)
	}

	return geo.Coordinate{
		Lat: geo.Truncate(result.Latitude, geo.TruncPrecision),
		Lon: geo.Truncate(result.Longitude, geo.TruncPrecision),
		Acc: accuracy(result),
	}, nil
}

func accuracy(result *APIResult) float64 {
	switch {
	case result.ZipCode != "":
		return geo.AccuracyZip
	case result.City != "":
		return geo.AccuracyCity
	case result.RegionCode != "":
		return geo.AccuracyRegion
	case result.CountryCode != "":
		return geo.AccuracyCountry
	default:
		return geo.AccuracyUnknown
	}
}
