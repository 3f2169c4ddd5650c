// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/location-picker/internal/geo"
)

const (
	busName          = "org.freedesktop.GeoClue2"
	managerPath      = dbus.ObjectPath("/org/freedesktop/GeoClue2/Manager")
	managerInterface = "org.freedesktop.GeoClue2.Manager"
	clientInterface  = "org.freedesktop.GeoClue2.Client"
	locationIface    = "org.freedesktop.GeoClue2.Location"
	locationUpdated  = "LocationUpdated"
	name             = "geoclue"

	// DefaultDesktopID is the desktop id GeoClue uses to look up the app's authorization.
	DefaultDesktopID = "location-picker"
)

// AccuracyLevel mirrors GClueAccuracyLevel.
type AccuracyLevel uint32

const (
	AccuracyLevelNone         AccuracyLevel = 0
	AccuracyLevelCountry      AccuracyLevel = 1
	AccuracyLevelCity         AccuracyLevel = 4
	AccuracyLevelNeighborhood AccuracyLevel = 5
	AccuracyLevelStreet       AccuracyLevel = 6
	AccuracyLevelExact        AccuracyLevel = 8
)

var ErrUnexpectedSignal = errors.New("unexpected LocationUpdated signal body")

// GeolocationGeoClueProvider asks the GeoClue2 service on the system bus for the current position.
type GeolocationGeoClueProvider struct {
	name      string
	desktopID string
	accuracy  AccuracyLevel
	connectFn func(ctx context.Context) (*dbus.Conn, error)
}

func NewGeolocationGeoClueProvider(desktopID string) *GeolocationGeoClueProvider {
	if desktopID == "" {
		desktopID = DefaultDesktopID
	}
	return &GeolocationGeoClueProvider{
		name:      name,
		desktopID: desktopID,
		accuracy:  AccuracyLevelExact,
		connectFn: func(ctx context.Context) (*dbus.Conn, error) {
			return dbus.ConnectSystemBus(dbus.WithContext(ctx))
		},
	}
}

func (p *GeolocationGeoClueProvider) Name() string {
	return p.name
}

// CurrentPosition registers a GeoClue client, starts it and waits for the first LocationUpdated
// signal. The client is stopped and the bus connection closed before returning.
func (p *GeolocationGeoClueProvider) CurrentPosition(ctx context.Context) (coord geo.Coordinate, err error) {
	conn, err := p.connectFn(ctx)
	if err != nil {
		return coord, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close system bus: %w", closeErr))
		}
	}()

	var clientPath dbus.ObjectPath
	manager := conn.Object(busName, managerPath)
	if err = manager.CallWithContext(ctx, managerInterface+".GetClient", 0).Store(&clientPath); err != nil {
		return coord, fmt.Errorf("failed to get geoclue client: %w", err)
	}
	client := conn.Object(busName, clientPath)
	if err = client.SetProperty(clientInterface+".DesktopId", dbus.MakeVariant(p.desktopID)); err != nil {
		return coord, fmt.Errorf("failed to set desktop id: %w", err)
	}
	if err = client.SetProperty(clientInterface+".RequestedAccuracyLevel",
		dbus.MakeVariant(uint32(p.accuracy))); err != nil {
		return coord, fmt.Errorf("failed to set requested accuracy level: %w", err)
	}

	matchOpts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(clientPath),
		dbus.WithMatchInterface(clientInterface),
		dbus.WithMatchMember(locationUpdated),
	}
	if err = conn.AddMatchSignal(matchOpts...); err != nil {
		return coord, fmt.Errorf("failed to subscribe to location updates: %w", err)
	}
	signals := make(chan *dbus.Signal, 4)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	if err = client.CallWithContext(ctx, clientInterface+".Start", 0).Err; err != nil {
		return coord, fmt.Errorf("failed to start geoclue client: %w", err)
	}
	defer func() {
		stopCtx := context.WithoutCancel(ctx)
		if stopErr := client.CallWithContext(stopCtx, clientInterface+".Stop", 0).Err; stopErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to stop geoclue client: %w", stopErr))
		}
		_ = manager.CallWithContext(stopCtx, managerInterface+".DeleteClient", 0, clientPath).Err
	}()

	for {
		select {
		case <-ctx.Done():
			return coord, ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return coord, errors.New("system bus connection closed")
			}
			if sig.Path != clientPath || sig.Name != clientInterface+"."+locationUpdated {
				continue
			}
			locationPath, err := newLocationPath(sig.Body)
			if err != nil {
				return coord, err
			}
			return readLocation(conn.Object(busName, locationPath))
		}
	}
}

// newLocationPath extracts the new location object from the LocationUpdated(old, new) body.
func newLocationPath(body []interface{}) (dbus.ObjectPath, error) {
	if len(body) != 2 {
		return "", ErrUnexpectedSignal
	}
	path, ok := body[1].(dbus.ObjectPath)
	if !ok || !path.IsValid() {
		return "", ErrUnexpectedSignal
	}
	return path, nil
}

func readLocation(location dbus.BusObject) (geo.Coordinate, error) {
	lat, err := floatProperty(location, "Latitude")
	if err != nil {
		return geo.Coordinate{}, err
	}
	lon, err := floatProperty(location, "Longitude")
	if err != nil {
		return geo.Coordinate{}, err
	}
	acc, err := floatProperty(location, "Accuracy")
	if err != nil {
		return geo.Coordinate{}, err
	}
	return geo.Coordinate{
		Lat: geo.Truncate(lat, geo.TruncPrecision),
		Lon: geo.Truncate(lon, geo.TruncPrecision),
		Acc: acc,
	}, nil
}

func floatProperty(obj dbus.BusObject, property string) (float64, error) {
	variant, err := obj.GetProperty(locationIface + "." + property)
	if err != nil {
		return 0, fmt.Errorf("failed to read location %s: %w", property, err)
	}
	val, ok := variant.Value().(float64)
	if !ok {
		return 0, fmt.Errorf("location %s has unexpected type %s", property, variant.Signature())
	}
	return val, nil
}
