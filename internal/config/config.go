// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"
)

const (
	configEnv           = "LOCATIONPICKER"
	DefaultSelectionTpl = `{{if .Resolved}}{{.Address}}{{else}}{{loc "unavailable"}}{{end}}` +
		` ({{floatFormat .Latitude 4}}, {{floatFormat .Longitude 4}})`
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Picker struct {
		LocateTimeout  time.Duration `fig:"locate_timeout" default:"15s"`
		ResolveTimeout time.Duration `fig:"resolve_timeout" default:"10s"`
		// Number of selections buffered for slow consumers
		Buffer int `fig:"buffer" default:"8"`
		// Keep the picker visible while the system is suspended
		IgnoreSuspend bool `fig:"ignore_suspend"`
	} `fig:"picker"`

	Permission struct {
		StateFile string `fig:"state_file"`
		// Allowed values: granted, denied or empty to ask the user
		Status string `fig:"status"`
	} `fig:"permission"`

	Templates struct {
		Selection string `fig:"selection"`
	} `fig:"templates"`

	GeoLocation struct {
		GeoLocationFile        string `fig:"file"`
		GeoClueDesktopID       string `fig:"geoclue_desktop_id"`
		GPSDHost               string `fig:"gpsd_host" default:"localhost"`
		GPSDPort               string `fig:"gpsd_port" default:"2947"`
		ICHNAEAEndpoint        string `fig:"ichnaea_endpoint"`
		GeoIPEndpoint          string `fig:"geoip_endpoint"`
		DisableGeolocationFile bool   `fig:"disable_geolocation_file"`
		DisableGPSD            bool   `fig:"disable_gpsd"`
		DisableGeoClue         bool   `fig:"disable_geoclue"`
		DisableICHNAEA         bool   `fig:"disable_ichnaea"`
		DisableGeoIP           bool   `fig:"disable_geoip"`
	} `fig:"geolocation"`

	GeoCoder struct {
		// Allowed values: nominatim, opencage, geocode-earth
		Provider           string        `fig:"provider" default:"nominatim"`
		APIKey             string        `fig:"apikey"`
		CacheHitTTL        time.Duration `fig:"cache_hit_ttl" default:"24h"`
		CacheMissTTL       time.Duration `fig:"cache_miss_ttl" default:"5m"`
		CachePurgeInterval time.Duration `fig:"cache_purge_interval" default:"10m"`
	} `fig:"geocoder"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if c.Picker.LocateTimeout <= 0 {
		return fmt.Errorf("invalid locate timeout: %s", c.Picker.LocateTimeout)
	}
	if c.Picker.ResolveTimeout <= 0 {
		return fmt.Errorf("invalid resolve timeout: %s", c.Picker.ResolveTimeout)
	}
	if c.Picker.Buffer < 1 {
		return fmt.Errorf("invalid selection buffer size: %d", c.Picker.Buffer)
	}

	switch strings.ToLower(c.Permission.Status) {
	case "", "granted", "denied":
	default:
		return fmt.Errorf("invalid permission status: %s", c.Permission.Status)
	}

	switch strings.ToLower(c.GeoCoder.Provider) {
	case "nominatim":
	case "opencage", "geocode-earth":
		if c.GeoCoder.APIKey == "" {
			return fmt.Errorf("geocoder %s requires an API key", c.GeoCoder.Provider)
		}
	default:
		return fmt.Errorf("unsupported geocoder: %s", c.GeoCoder.Provider)
	}
	if c.GeoCoder.CachePurgeInterval <= 0 {
		return fmt.Errorf("invalid cache purge interval: %s", c.GeoCoder.CachePurgeInterval)
	}

	if c.Templates.Selection == "" {
		c.Templates.Selection = DefaultSelectionTpl
	}

	home, _ := os.UserHomeDir()
	if c.GeoLocation.GeoLocationFile == "" {
		c.GeoLocation.GeoLocationFile = filepath.Join(home, ".config", "location-picker", "geolocation")
	}
	if c.Permission.StateFile == "" {
		c.Permission.StateFile = filepath.Join(home, ".local", "state", "location-picker", "permission.toml")
	}

	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
