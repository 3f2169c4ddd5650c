// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/wneessen/location-picker/internal/geocode"
	geocodeearth "github.com/wneessen/location-picker/internal/geocode/provider/geocode-earth"
	"github.com/wneessen/location-picker/internal/geocode/provider/opencage"
	nominatim "github.com/wneessen/location-picker/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/location-picker/internal/locate"
	"github.com/wneessen/location-picker/internal/locate/provider/geoclue"
	"github.com/wneessen/location-picker/internal/locate/provider/geoip"
	"github.com/wneessen/location-picker/internal/locate/provider/geolocation_file"
	"github.com/wneessen/location-picker/internal/locate/provider/gpsd"
	"github.com/wneessen/location-picker/internal/locate/provider/ichnaea"
	"github.com/wneessen/location-picker/internal/logger"
)

// selectLocators returns the enabled locators, most precise first.
func (s *Service) selectLocators() ([]locate.Locator, error) {
	var provider []locate.Locator
	conf := s.config.GeoLocation

	if !conf.DisableGeolocationFile {
		provider = append(provider, geolocation_file.NewGeolocationFileProvider(conf.GeoLocationFile))
	}

	if !conf.DisableGPSD {
		provider = append(provider, gpsd.NewGeolocationGPSDProvider(conf.GPSDHost, conf.GPSDPort))
	}

	if !conf.DisableGeoClue {
		provider = append(provider, geoclue.NewGeolocationGeoClueProvider(conf.GeoClueDesktopID))
	}

	if !conf.DisableICHNAEA {
		mls, err := ichnaea.NewGeolocationICHNAEAProvider(s.http, conf.ICHNAEAEndpoint)
		if err != nil {
			s.logger.Error("failed to create ICHNAEA provider", logger.Err(err))
		} else {
			provider = append(provider, mls)
		}
	}

	if !conf.DisableGeoIP {
		gip, err := geoip.NewGeolocationGeoIPProvider(s.http, conf.GeoIPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create GeoIP provider: %w", err)
		}
		provider = append(provider, gip)
	}

	if len(provider) == 0 {
		return nil, errors.New("no geolocation providers enabled")
	}
	return provider, nil
}

func (s *Service) selectGeocodeProvider(lang language.Tag) (*geocode.CachedGeocoder, error) {
	var geocoder geocode.Geocoder
	conf := s.config.GeoCoder

	switch strings.ToLower(conf.Provider) {
	case "nominatim":
		geocoder = nominatim.New(s.http, lang)
	case "opencage":
		if conf.APIKey == "" {
			return nil, errors.New("opencage geocoder requires an API key")
		}
		geocoder = opencage.New(s.http, lang, conf.APIKey)
	case "geocode-earth":
		if conf.APIKey == "" {
			return nil, errors.New("geocode-earth geocoder requires an API key")
		}
		geocoder = geocodeearth.New(s.http, lang, conf.APIKey)
	default:
		return nil, fmt.Errorf("unsupported geocoder type: %s", conf.Provider)
	}

	return geocode.NewCachedGeocoder(geocoder, conf.CacheHitTTL, conf.CacheMissTTL), nil
}
