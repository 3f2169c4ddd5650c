// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	stdhttp "net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/location-picker/internal/config"
	"github.com/wneessen/location-picker/internal/http"
	"github.com/wneessen/location-picker/internal/i18n"
	"github.com/wneessen/location-picker/internal/logger"
	"github.com/wneessen/location-picker/internal/navigation"
	"github.com/wneessen/location-picker/internal/picker"
	"github.com/wneessen/location-picker/internal/testhelper"
)

const (
	geolocationFile   = "../../testdata/geolocation"
	reverseFile       = "../../testdata/nominatim_berlin.json"
	searchFile        = "../../testdata/nominatim_search.json"
	searchEmptyFile   = "../../testdata/nominatim_search_empty.json"
	berlinDisplayName = "Quartier 205, 67, Friedrichstraße, Friedrichstadt, Mitte, Berlin, 10117, Germany"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

type testIO struct {
	out  *syncBuffer
	term *syncBuffer
}

func TestNew(t *testing.T) {
	t.Run("new service succeeds", func(t *testing.T) {
		serv, _ := testService(t, "", nil, nil)
		if serv == nil {
			t.Fatal("expected service to be non-nil")
		}
	})
	t.Run("new service without logger fails", func(t *testing.T) {
		conf, err := config.New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		loc, err := i18n.New("en")
		if err != nil {
			t.Fatalf("failed to create localizer: %s", err)
		}
		if _, err = New(conf, nil, loc, strings.NewReader(""), io.Discard, io.Discard); err == nil {
			t.Error("expected service to fail")
		}
	})
	t.Run("new service without localizer fails", func(t *testing.T) {
		conf, err := config.New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		log := logger.NewLogger(slog.LevelError, io.Discard)
		if _, err = New(conf, log, nil, strings.NewReader(""), io.Discard, io.Discard); err == nil {
			t.Error("expected service to fail")
		}
	})
	t.Run("initializing service with different geocode providers", func(t *testing.T) {
		tests := []struct {
			name     string
			provider string
			apikey   string
			wantName string
			wantFail bool
		}{
			{"osm-nominatim", "nominatim", "", "osm-nominatim", false},
			{"opencage with api-key", "opencage", "secret", "opencage", false},
			{"opencage without api-key", "opencage", "", "", true},
			{"geocode-earth with api-key", "geocode-earth", "secret", "geocode-earth", false},
			{"geocode-earth without api-key", "geocode-earth", "", "", true},
			{"unsupported provider", "carrier-pigeon", "", "", true},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				serv, err := newTestService(t, "", nil, func(c *config.Config) {
					c.GeoCoder.Provider = tc.provider
					c.GeoCoder.APIKey = tc.apikey
				})
				if tc.wantFail {
					if err == nil {
						t.Fatal("expected service to fail")
					}
					return
				}
				if err != nil {
					t.Fatalf("failed to create service: %s", err)
				}
				if !strings.HasSuffix(serv.geocoder.Name(), tc.wantName) {
					t.Errorf("expected geocoder to use %s, got %s", tc.wantName, serv.geocoder.Name())
				}
			})
		}
	})
	t.Run("invalid permission status fails", func(t *testing.T) {
		_, err := newTestService(t, "", nil, func(c *config.Config) {
			c.Permission.Status = "maybe"
		})
		if err == nil {
			t.Error("expected service to fail")
		}
	})
	t.Run("invalid template fails", func(t *testing.T) {
		_, err := newTestService(t, "", nil, func(c *config.Config) {
			c.Templates.Selection = "{{ .Address }"
		})
		if err == nil {
			t.Error("expected service to fail")
		}
	})
}

func TestService_selectLocators(t *testing.T) {
	t.Run("all locators enabled", func(t *testing.T) {
		serv, _ := testService(t, "", nil, func(c *config.Config) {
			c.GeoLocation.DisableGPSD = false
			c.GeoLocation.DisableGeoClue = false
			c.GeoLocation.DisableICHNAEA = false
			c.GeoLocation.DisableGeoIP = false
		})
		locators, err := serv.selectLocators()
		if err != nil {
			t.Fatalf("failed to select locators: %s", err)
		}
		want := []string{"geolocation_file", "gpsd", "geoclue", "ichnaea", "geoip"}
		if len(locators) != len(want) {
			t.Fatalf("expected %d locators, got %d", len(want), len(locators))
		}
		for i, name := range want {
			if locators[i].Name() != name {
				t.Errorf("expected locator %d to be %s, got %s", i, name, locators[i].Name())
			}
		}
	})
	t.Run("no locators enabled fails", func(t *testing.T) {
		_, err := newTestService(t, "", nil, func(c *config.Config) {
			c.GeoLocation.DisableGeolocationFile = true
		})
		if err == nil {
			t.Error("expected service without locators to fail")
		}
	})
}

func TestService_Run(t *testing.T) {
	t.Run("locate reports the device position", func(t *testing.T) {
		serv, tio := testService(t, "locate\nquit\n", nil, nil)
		runService(t, serv)

		outputs := decodeOutputs(t, tio.out.String())
		if len(outputs) != 1 {
			t.Fatalf("expected exactly one selection, got %d: %s", len(outputs), tio.out.String())
		}
		got := outputs[0]
		if got.Latitude != 40.7185 || got.Longitude != -74.0025 {
			t.Errorf("unexpected coordinates: %f,%f", got.Latitude, got.Longitude)
		}
		if !got.Resolved || got.Address != berlinDisplayName || got.Source != picker.SourceDevice {
			t.Errorf("unexpected selection: %+v", got)
		}
		if !strings.HasPrefix(got.Text, berlinDisplayName+" (40.718") {
			t.Errorf("unexpected text: %q", got.Text)
		}
	})
	t.Run("undetermined permission asks and remembers the answer", func(t *testing.T) {
		var stateFile string
		serv, tio := testService(t, "locate\ny\n", nil, func(c *config.Config) {
			c.Permission.Status = ""
			stateFile = c.Permission.StateFile
		})
		runService(t, serv)

		if !strings.Contains(tio.term.String(), string(i18n.PermissionPrompt)) {
			t.Errorf("expected permission prompt, got %q", tio.term.String())
		}
		if outputs := decodeOutputs(t, tio.out.String()); len(outputs) != 1 {
			t.Errorf("expected exactly one selection, got %d", len(outputs))
		}
		data, err := os.ReadFile(stateFile)
		if err != nil {
			t.Fatalf("failed to read permission state: %s", err)
		}
		if !strings.Contains(string(data), "granted") {
			t.Errorf("expected granted permission to be stored, got %q", data)
		}
	})
	t.Run("denied permission shows the alert", func(t *testing.T) {
		serv, tio := testService(t, "locate\n\n", nil, func(c *config.Config) {
			c.Permission.Status = "denied"
		})
		runService(t, serv)

		if !strings.Contains(tio.term.String(), "Insufficient Permissions!") {
			t.Errorf("expected denial alert, got %q", tio.term.String())
		}
		if tio.out.String() != "" {
			t.Errorf("expected no selection, got %q", tio.out.String())
		}
	})
	t.Run("map return with coordinates", func(t *testing.T) {
		serv, tio := testService(t, "map\n47.6,-122.3\n", nil, nil)
		runService(t, serv)

		outputs := decodeOutputs(t, tio.out.String())
		if len(outputs) != 1 {
			t.Fatalf("expected exactly one selection, got %d", len(outputs))
		}
		if outputs[0].Latitude != 47.6 || outputs[0].Longitude != -122.3 || outputs[0].Source != picker.SourceMap {
			t.Errorf("unexpected selection: %+v", outputs[0])
		}
		if !strings.Contains(tio.term.String(), mapHelpText) {
			t.Errorf("expected map help, got %q", tio.term.String())
		}
	})
	t.Run("map return with place search", func(t *testing.T) {
		var searched string
		serv, tio := testService(t, "map\nSeattle\n", func(req *stdhttp.Request) (*stdhttp.Response, error) {
			if strings.HasSuffix(req.URL.Path, "/search") {
				searched = req.URL.Query().Get("q")
				return fileResponse(t, searchFile), nil
			}
			return fileResponse(t, reverseFile), nil
		}, nil)
		runService(t, serv)

		if searched != "Seattle" {
			t.Errorf("expected search for Seattle, got %q", searched)
		}
		outputs := decodeOutputs(t, tio.out.String())
		if len(outputs) != 1 {
			t.Fatalf("expected exactly one selection, got %d", len(outputs))
		}
		if outputs[0].Latitude != 47.6038321 || outputs[0].Longitude != -122.3300624 {
			t.Errorf("unexpected coordinates: %f,%f", outputs[0].Latitude, outputs[0].Longitude)
		}
	})
	t.Run("place search without result stays on the map", func(t *testing.T) {
		serv, tio := testService(t, "map\nNowhere\nstatus\nback\nstatus\n",
			func(req *stdhttp.Request) (*stdhttp.Response, error) {
				return fileResponse(t, searchEmptyFile), nil
			}, nil)
		runService(t, serv)

		if !strings.Contains(tio.term.String(), `no place found for "Nowhere"`) {
			t.Errorf("expected search failure notice, got %q", tio.term.String())
		}
		if tio.out.String() != "" {
			t.Errorf("expected no selection, got %q", tio.out.String())
		}
		// "status" typed on the map screen is a place query, so only the last one prints a status.
		if count := strings.Count(tio.term.String(), "state: none, visible: true"); count != 1 {
			t.Errorf("expected one status line after going back, got %d in %q", count, tio.term.String())
		}
	})
	t.Run("back without choice keeps the selection", func(t *testing.T) {
		serv, tio := testService(t, "map\n1,2\nmap\nback\nhide\nshow\n", nil, nil)
		runService(t, serv)

		if outputs := decodeOutputs(t, tio.out.String()); len(outputs) != 1 {
			t.Errorf("expected exactly one selection, got %d", len(outputs))
		}
		selection, ok := serv.picker.Current()
		if !ok {
			t.Fatal("expected a current selection")
		}
		if selection.Coordinate.Lat != 1 || selection.Coordinate.Lon != 2 || selection.Source != picker.SourceMap {
			t.Errorf("unexpected selection: %+v", selection)
		}
	})
	t.Run("invalid map coordinates are ignored", func(t *testing.T) {
		serv, tio := testService(t, "map\n123,456\n", nil, nil)
		runService(t, serv)
		if tio.out.String() != "" {
			t.Errorf("expected no selection, got %q", tio.out.String())
		}
	})
	t.Run("geocoder failure reports an unresolved selection", func(t *testing.T) {
		serv, tio := testService(t, "locate\n", func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return nil, errors.New("intentionally failing")
		}, nil)
		runService(t, serv)

		outputs := decodeOutputs(t, tio.out.String())
		if len(outputs) != 1 {
			t.Fatalf("expected exactly one selection, got %d", len(outputs))
		}
		if outputs[0].Resolved || outputs[0].Address != "" {
			t.Errorf("expected unresolved selection, got %+v", outputs[0])
		}
		if !strings.HasPrefix(outputs[0].Text, "Address unavailable") {
			t.Errorf("unexpected text: %q", outputs[0].Text)
		}
	})
	t.Run("unknown command and help", func(t *testing.T) {
		serv, tio := testService(t, "dance\nhelp\nexit\nlocate\n", nil, nil)
		runService(t, serv)

		if !strings.Contains(tio.term.String(), `unknown command "dance"`) {
			t.Errorf("expected unknown command notice, got %q", tio.term.String())
		}
		if count := strings.Count(tio.term.String(), helpText); count < 3 {
			t.Errorf("expected help to be printed at least 3 times, got %d", count)
		}
		if tio.out.String() != "" {
			t.Errorf("expected commands after exit to be ignored, got %q", tio.out.String())
		}
	})
	t.Run("run ends with the context", func(t *testing.T) {
		pr, pw := io.Pipe()
		defer func() { _ = pw.Close() }()
		conf := testConfig(t)
		log := logger.NewLogger(slog.LevelError, io.Discard)
		loc, err := i18n.New(conf.Locale)
		if err != nil {
			t.Fatalf("failed to create localizer: %s", err)
		}
		serv, err := New(conf, log, loc, pr, io.Discard, io.Discard)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		ctx, cancel := context.WithTimeout(t.Context(), time.Millisecond*100)
		defer cancel()
		if err = serv.Run(ctx); err != nil {
			t.Errorf("expected run to end cleanly, got %s", err)
		}
	})
}

func TestService_HandleSignals(t *testing.T) {
	t.Run("USR1 signal toggles visibility", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		serv, _ := testService(t, "", nil, nil)
		sigChan := make(chan os.Signal, 1)
		go serv.HandleSignals(ctx, sigChan)

		sigChan <- syscall.SIGUSR1
		time.Sleep(time.Millisecond * 100)
		if serv.router.Current().Visible {
			t.Error("expected picker to be hidden")
		}
		sigChan <- syscall.SIGUSR1
		time.Sleep(time.Millisecond * 100)
		if !serv.router.Current().Visible {
			t.Error("expected picker to be visible again")
		}
	})
	t.Run("USR1 signal is ignored while the map screen is open", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		serv, _ := testService(t, "", nil, nil)
		if err := serv.picker.PickOnMap(ctx); err != nil {
			t.Fatalf("failed to open map screen: %s", err)
		}
		sigChan := make(chan os.Signal, 1)
		go serv.HandleSignals(ctx, sigChan)

		sigChan <- syscall.SIGUSR1
		time.Sleep(time.Millisecond * 100)
		if serv.router.Current().Visible {
			t.Error("expected picker to stay hidden behind the map screen")
		}
		if serv.router.ActiveScreen() != navigation.ScreenMap {
			t.Errorf("expected map screen to stay active, got %q", serv.router.ActiveScreen())
		}
	})
	t.Run("USR2 signal is handled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		serv, _ := testService(t, "", nil, nil)
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.logger = logger.NewLogger(slog.LevelInfo, buf)
		sigChan := make(chan os.Signal, 1)
		go serv.HandleSignals(ctx, sigChan)

		sigChan <- syscall.SIGUSR2
		time.Sleep(time.Millisecond * 100)
		wantLog := `msg="current selection" state=none address="" latitude=0 longitude=0`
		if !strings.Contains(buf.String(), wantLog) {
			t.Errorf("expected log to contain %q, got %q", wantLog, buf.String())
		}
	})
}

func TestService_mapReturn(t *testing.T) {
	t.Run("map choice is applied after the picker was shown on top of the map", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		serv, _ := testService(t, "", nil, nil)
		events, unsub := serv.router.Subscribe(8)
		defer unsub()
		go func() { _ = serv.picker.Watch(ctx, events) }()

		if err := serv.picker.PickOnMap(ctx); err != nil {
			t.Fatalf("failed to open map screen: %s", err)
		}
		serv.router.SetVisible(true)
		if _, err := serv.router.Return(47.6, -122.3); err != nil {
			t.Fatalf("failed to return from map screen: %s", err)
		}

		select {
		case selection := <-serv.picker.Selections():
			if selection.Coordinate.Lat != 47.6 || selection.Coordinate.Lon != -122.3 {
				t.Errorf("expected 47.6,-122.3, got %s", selection.Coordinate)
			}
			if selection.Source != picker.SourceMap {
				t.Errorf("expected source to be %s, got %s", picker.SourceMap, selection.Source)
			}
		case <-time.After(time.Second * 5):
			t.Fatal("expected the map choice to be reported")
		}
		if err := serv.picker.Close(); err != nil {
			t.Errorf("failed to close picker: %s", err)
		}
	})
}

func TestService_printStatus(t *testing.T) {
	t.Run("status without selection shows the empty preview", func(t *testing.T) {
		serv, tio := testService(t, "status\n", nil, nil)
		runService(t, serv)
		if !strings.Contains(tio.term.String(), "preview: No location picked yet.") {
			t.Errorf("expected empty preview, got %q", tio.term.String())
		}
	})
	t.Run("status with a resolved selection shows the rendered preview", func(t *testing.T) {
		serv, tio := testService(t, "locate\n", nil, nil)
		runService(t, serv)
		serv.printStatus()
		if !strings.Contains(tio.term.String(), "preview: "+berlinDisplayName+" (40.718") {
			t.Errorf("expected rendered preview, got %q", tio.term.String())
		}
		if !strings.Contains(tio.term.String(), "state: resolved") {
			t.Errorf("expected resolved state, got %q", tio.term.String())
		}
	})
}

func TestService_processSleepSignal(t *testing.T) {
	serv, _ := testService(t, "", nil, nil)
	serv.processSleepSignal(&dbus.Signal{Body: []interface{}{true}})
	if serv.router.Current().Visible {
		t.Error("expected picker to be hidden during sleep")
	}
	serv.processSleepSignal(&dbus.Signal{Body: []interface{}{"garbage"}})
	serv.processSleepSignal(&dbus.Signal{Body: nil})
	if serv.router.Current().Visible {
		t.Error("expected malformed signals to be ignored")
	}
	serv.processSleepSignal(&dbus.Signal{Body: []interface{}{false}})
	if !serv.router.Current().Visible {
		t.Error("expected picker to be visible after resume")
	}

	if err := serv.router.GoTo(t.Context(), navigation.ScreenMap); err != nil {
		t.Fatalf("failed to navigate: %s", err)
	}
	serv.processSleepSignal(&dbus.Signal{Body: []interface{}{true}})
	serv.processSleepSignal(&dbus.Signal{Body: []interface{}{false}})
	if serv.router.Current().Visible {
		t.Error("expected picker to stay hidden behind the map screen")
	}
}

func TestService_purgeGeocodeCache(t *testing.T) {
	serv, _ := testService(t, "", nil, nil)
	buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
	serv.logger = logger.NewLogger(slog.LevelDebug, buf)
	serv.purgeGeocodeCache(t.Context())
	if !strings.Contains(buf.String(), `msg="purged geocode cache" purged=0 remaining=0`) {
		t.Errorf("unexpected log output: %q", buf.String())
	}
}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		val      string
		lat, lon float64
		ok       bool
	}{
		{"47.6,-122.3", 47.6, -122.3, true},
		{" 52.52 , 13.405 ", 52.52, 13.405, true},
		{"Seattle", 0, 0, false},
		{"47.6;-122.3", 0, 0, false},
		{"north,south", 0, 0, false},
		{"47.6,west", 0, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.val, func(t *testing.T) {
			coord, ok := parseCoordinate(tc.val)
			if ok != tc.ok {
				t.Fatalf("expected ok to be %t, got %t", tc.ok, ok)
			}
			if coord.Lat != tc.lat || coord.Lon != tc.lon {
				t.Errorf("expected %f,%f, got %s", tc.lat, tc.lon, coord)
			}
		})
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	conf, err := config.New()
	if err != nil {
		t.Fatalf("failed to load config: %s", err)
	}
	conf.Locale = "en"
	conf.Permission.Status = "granted"
	conf.Permission.StateFile = filepath.Join(t.TempDir(), "permission.toml")
	conf.GeoLocation.GeoLocationFile = geolocationFile
	conf.GeoLocation.DisableGPSD = true
	conf.GeoLocation.DisableGeoClue = true
	conf.GeoLocation.DisableICHNAEA = true
	conf.GeoLocation.DisableGeoIP = true
	conf.Picker.IgnoreSuspend = true
	return conf
}

func newTestService(t *testing.T, input string, rtFn func(*stdhttp.Request) (*stdhttp.Response, error),
	configure func(*config.Config),
) (*Service, error) {
	t.Helper()
	serv, _, err := buildTestService(t, input, rtFn, configure)
	return serv, err
}

func testService(t *testing.T, input string, rtFn func(*stdhttp.Request) (*stdhttp.Response, error),
	configure func(*config.Config),
) (*Service, testIO) {
	t.Helper()
	serv, tio, err := buildTestService(t, input, rtFn, configure)
	if err != nil {
		t.Fatalf("failed to create service: %s", err)
	}
	return serv, tio
}

func buildTestService(t *testing.T, input string, rtFn func(*stdhttp.Request) (*stdhttp.Response, error),
	configure func(*config.Config),
) (*Service, testIO, error) {
	t.Helper()
	conf := testConfig(t)
	if configure != nil {
		configure(conf)
	}
	if rtFn == nil {
		rtFn = func(*stdhttp.Request) (*stdhttp.Response, error) {
			return fileResponse(t, reverseFile), nil
		}
	}

	log := logger.NewLogger(slog.LevelError, io.Discard)
	loc, err := i18n.New(conf.Locale)
	if err != nil {
		t.Fatalf("failed to create localizer: %s", err)
	}
	client := http.New(log)
	client.Transport = testhelper.MockRoundTripper{Fn: rtFn}
	tio := testIO{
		out:  &syncBuffer{buf: bytes.NewBuffer(nil)},
		term: &syncBuffer{buf: bytes.NewBuffer(nil)},
	}
	serv, err := newService(conf, log, loc, client, strings.NewReader(input), tio.out, tio.term)
	return serv, tio, err
}

func runService(t *testing.T, serv *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), time.Second*10)
	defer cancel()
	if err := serv.Run(ctx); err != nil {
		t.Fatalf("failed to run service: %s", err)
	}
}

func decodeOutputs(t *testing.T, data string) []outputData {
	t.Helper()
	var outputs []outputData
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		var output outputData
		if err := json.Unmarshal(scanner.Bytes(), &output); err != nil {
			t.Fatalf("failed to decode output line %q: %s", scanner.Text(), err)
		}
		outputs = append(outputs, output)
	}
	return outputs
}

func fileResponse(t *testing.T, file string) *stdhttp.Response {
	t.Helper()
	data, err := os.Open(file)
	if err != nil {
		t.Fatalf("failed to open JSON response file: %s", err)
	}
	return &stdhttp.Response{
		StatusCode: 200,
		Body:       data,
		Header:     make(stdhttp.Header),
	}
}
