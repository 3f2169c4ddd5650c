// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	const (
		expectLogLevel       = slog.LevelInfo
		expectLocateTimeout  = time.Second * 15
		expectResolveTimeout = time.Second * 10
		expectBuffer         = 8
		expectProvider       = "nominatim"
		expectGPSDPort       = "2947"
	)
	t.Run("new config with all defaults set", func(t *testing.T) {
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.LogLevel != expectLogLevel {
			t.Errorf("expected log level to be: %s, got %s", expectLogLevel, conf.LogLevel)
		}
		if conf.Picker.LocateTimeout != expectLocateTimeout {
			t.Errorf("expected locate timeout to be: %s, got %s", expectLocateTimeout, conf.Picker.LocateTimeout)
		}
		if conf.Picker.ResolveTimeout != expectResolveTimeout {
			t.Errorf("expected resolve timeout to be: %s, got %s", expectResolveTimeout,
				conf.Picker.ResolveTimeout)
		}
		if conf.Picker.Buffer != expectBuffer {
			t.Errorf("expected buffer to be: %d, got %d", expectBuffer, conf.Picker.Buffer)
		}
		if conf.GeoCoder.Provider != expectProvider {
			t.Errorf("expected geocoder to be: %s, got %s", expectProvider, conf.GeoCoder.Provider)
		}
		if conf.GeoLocation.GPSDPort != expectGPSDPort {
			t.Errorf("expected gpsd port to be: %s, got %s", expectGPSDPort, conf.GeoLocation.GPSDPort)
		}
		if conf.Templates.Selection != DefaultSelectionTpl {
			t.Errorf("expected default selection template, got %q", conf.Templates.Selection)
		}
		if !strings.HasSuffix(conf.Permission.StateFile, filepath.Join("location-picker", "permission.toml")) {
			t.Errorf("unexpected permission state file: %s", conf.Permission.StateFile)
		}
		if !strings.HasSuffix(conf.GeoLocation.GeoLocationFile, filepath.Join("location-picker", "geolocation")) {
			t.Errorf("unexpected geolocation file: %s", conf.GeoLocation.GeoLocationFile)
		}
	})
	t.Run("values from env are applied", func(t *testing.T) {
		t.Setenv("LOCATIONPICKER_PICKER_RESOLVE_TIMEOUT", "3s")
		t.Setenv("LOCATIONPICKER_PERMISSION_STATUS", "granted")
		t.Setenv("LOCATIONPICKER_GEOLOCATION_DISABLE_GPSD", "true")
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.Picker.ResolveTimeout != time.Second*3 {
			t.Errorf("expected resolve timeout from env, got %s", conf.Picker.ResolveTimeout)
		}
		if conf.Permission.Status != "granted" {
			t.Errorf("expected permission status from env, got %q", conf.Permission.Status)
		}
		if !conf.GeoLocation.DisableGPSD {
			t.Error("expected gpsd to be disabled")
		}
	})
	t.Run("new config with invalid values from env", func(t *testing.T) {
		t.Setenv("LOCATIONPICKER_LOGLEVEL", "invalid")
		_, err := New()
		if err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})

	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"invalid locate timeout", "LOCATIONPICKER_PICKER_LOCATE_TIMEOUT", "0s"},
		{"invalid resolve timeout", "LOCATIONPICKER_PICKER_RESOLVE_TIMEOUT", "-1s"},
		{"invalid buffer", "LOCATIONPICKER_PICKER_BUFFER", "0"},
		{"invalid permission status", "LOCATIONPICKER_PERMISSION_STATUS", "maybe"},
		{"unsupported geocoder", "LOCATIONPICKER_GEOCODER_PROVIDER", "carrier-pigeon"},
		{"geocoder without API key", "LOCATIONPICKER_GEOCODER_PROVIDER", "opencage"},
		{"invalid purge interval", "LOCATIONPICKER_GEOCODER_CACHE_PURGE_INTERVAL", "0s"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := New(); err == nil {
				t.Error("expected config to fail, but didn't")
			}
		})
	}
}

func TestNewFromFile(t *testing.T) {
	t.Run("config file is loaded", func(t *testing.T) {
		dir := t.TempDir()
		content := "locale = \"de\"\n\n[geocoder]\nprovider = \"opencage\"\napikey = \"secret\"\n"
		if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write config file: %s", err)
		}
		conf, err := NewFromFile(dir, "config.toml")
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.Locale != "de" {
			t.Errorf("expected locale to be de, got %q", conf.Locale)
		}
		if conf.GeoCoder.Provider != "opencage" || conf.GeoCoder.APIKey != "secret" {
			t.Errorf("unexpected geocoder config: %+v", conf.GeoCoder)
		}
	})
	t.Run("missing config file fails", func(t *testing.T) {
		if _, err := NewFromFile(t.TempDir(), "config.toml"); err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})
}

func TestGetLocale(t *testing.T) {
	t.Setenv("LC_MESSAGES", "de_DE.UTF-8")
	if locale := getLocale(); locale != "de-DE" {
		t.Errorf("expected locale to be de-DE, got %q", locale)
	}
}
