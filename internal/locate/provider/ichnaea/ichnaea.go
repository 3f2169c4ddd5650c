// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/location-picker/internal/geo"
	"github.com/wneessen/location-picker/internal/http"
)

const (
	DefaultEndpoint = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout   = time.Second * 5
	name            = "ichnaea"
)

// GeolocationICHNAEAProvider locates the device through an Ichnaea compatible geolocate API,
// using the WiFi access points in range as hints.
type GeolocationICHNAEAProvider struct {
	name     string
	http     *http.Client
	endpoint string
	scanFn   func() ([]WirelessNetwork, error)
}

type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
	Error    *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

type request struct {
	ConsiderIP   bool              `json:"considerIp"`
	Accesspoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
}

func NewGeolocationICHNAEAProvider(client *http.Client, endpoint string) (*GeolocationICHNAEAProvider, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &GeolocationICHNAEAProvider{
		name:     name,
		http:     client,
		endpoint: endpoint,
		scanFn:   wifiAccessPoints,
	}, nil
}

func (p *GeolocationICHNAEAProvider) Name() string {
	return p.name
}

// CurrentPosition scans for nearby access points and asks the geolocate API for a position. A failed
// scan is not fatal, the API then falls back to the request's IP address.
func (p *GeolocationICHNAEAProvider) CurrentPosition(ctx context.Context) (geo.Coordinate, error) {
	aps, err := p.scanFn()
	if err != nil {
		aps = nil
	}

	req := request{ConsiderIP: true, Accesspoints: aps}
	result := new(APIResult)
	code, err := p.http.PostJSON(ctx, p.endpoint, result, req, lookupTimeout)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
	if result.Error != nil {
		return geo.Coordinate{}, fmt.Errorf("geolocation API returned error %d: %s", result.Error.Code,
			result.Error.Message)
	}
	if code != 200 {
		return geo.Coordinate{}, fmt.Errorf("geolocation API returned HTTP status %d", code)
	}

	return geo.Coordinate{
		Lat: geo.Truncate(result.Location.Latitude, geo.TruncPrecision),
		Lon: geo.Truncate(result.Location.Longitude, geo.TruncPrecision),
		Acc: geo.Truncate(result.Accuracy, geo.TruncPrecision),
	}, nil
}

// wifiAccessPoints lists the access points visible to all WiFi station interfaces. Networks that
// opted out of location services with the "_nomap" suffix and hidden networks are skipped.
func wifiAccessPoints() (list []WirelessNetwork, err error) {
	wlan, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create wifi client: %w", err)
	}
	defer func() {
		if closeErr := wlan.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close wifi client: %w", closeErr))
		}
	}()

	ifaces, err := wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		aps, err := wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, WirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}
	return list, nil
}
