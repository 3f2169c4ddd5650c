// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/location-picker/internal/geo"
)

const (
	DefaultHost = "localhost"
	DefaultPort = "2947"
	name        = "gpsd"

	fallbackAccuracy3DFix = 10 // ~10 m typical consumer GPS in open sky
	fallbackAccuracy2DFix = 25 // worse than 3D, but still accurate enough
)

var ErrWatchEnded = errors.New("gpsd watch ended before a fix was received")

// session is the part of a gpsd session the provider depends on.
type session interface {
	AddFilter(class string, f gpsd.Filter)
	Watch() chan bool
}

// GeolocationGPSDProvider reads the current position from a local gpsd daemon.
type GeolocationGPSDProvider struct {
	name   string
	addr   string
	dialFn func(addr string) (session, error)
}

func NewGeolocationGPSDProvider(host, port string) *GeolocationGPSDProvider {
	if host == "" {
		host = DefaultHost
	}
	if port == "" {
		port = DefaultPort
	}
	return &GeolocationGPSDProvider{
		name: name,
		addr: net.JoinHostPort(host, port),
		dialFn: func(addr string) (session, error) {
			return gpsd.Dial(addr)
		},
	}
}

func (p *GeolocationGPSDProvider) Name() string {
	return p.name
}

// CurrentPosition connects to gpsd and waits for the first TPV report with at least a 2D fix.
// It gives up when the context is done or the gpsd connection ends.
func (p *GeolocationGPSDProvider) CurrentPosition(ctx context.Context) (geo.Coordinate, error) {
	sess, err := p.dialFn(p.addr)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("failed to connect to gpsd at %q: %w", p.addr, err)
	}

	fixes := make(chan geo.Coordinate, 1)
	sess.AddFilter("TPV", func(r interface{}) {
		tpv, ok := r.(*gpsd.TPVReport)
		if !ok || tpv.Mode < gpsd.Mode2D {
			return
		}
		coord := geo.Coordinate{
			Lat: geo.Truncate(tpv.Lat, geo.TruncPrecision),
			Lon: geo.Truncate(tpv.Lon, geo.TruncPrecision),
			Acc: horizontalAccuracyMeters(tpv),
		}
		select {
		case fixes <- coord:
		default:
		}
	})

	// go-gpsd has no way to close a session; the watch goroutine ends with the connection.
	done := sess.Watch()
	select {
	case <-ctx.Done():
		return geo.Coordinate{}, ctx.Err()
	case coord := <-fixes:
		return coord, nil
	case <-done:
		select {
		case coord := <-fixes:
			return coord, nil
		default:
			return geo.Coordinate{}, ErrWatchEnded
		}
	}
}

func horizontalAccuracyMeters(tpv *gpsd.TPVReport) float64 {
	if tpv.Epx > 0 && tpv.Epy > 0 {
		return math.Hypot(tpv.Epx, tpv.Epy)
	}
	if tpv.Mode >= gpsd.Mode3D {
		return fallbackAccuracy3DFix
	}
	return fallbackAccuracy2DFix
}
