// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/vorlif/spreak"

	"github.com/wneessen/location-picker/internal/alert"
	"github.com/wneessen/location-picker/internal/config"
	"github.com/wneessen/location-picker/internal/geo"
	"github.com/wneessen/location-picker/internal/geocode"
	"github.com/wneessen/location-picker/internal/http"
	"github.com/wneessen/location-picker/internal/i18n"
	"github.com/wneessen/location-picker/internal/locate"
	"github.com/wneessen/location-picker/internal/logger"
	"github.com/wneessen/location-picker/internal/navigation"
	"github.com/wneessen/location-picker/internal/permission"
	"github.com/wneessen/location-picker/internal/picker"
	"github.com/wneessen/location-picker/internal/template"
)

const (
	settlePollInterval = time.Millisecond * 25
	helpText           = "commands: locate, map, hide, show, status, help, quit"
	mapHelpText        = "map: enter \"lat,lon\" or a place name, an empty line or \"back\" returns without a choice"
)

type outputData struct {
	Text      string        `json:"text"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Address   string        `json:"address"`
	Resolved  bool          `json:"resolved"`
	Source    picker.Source `json:"source"`
}

// Service hosts the picker on a terminal. Commands are read line by line from the input,
// reported selections are written as JSON lines to the output and everything meant for the
// user goes to the terminal writer.
type Service struct {
	SignalSrc signalSource

	config    *config.Config
	logger    *logger.Logger
	localizer *spreak.Localizer
	http      *http.Client
	scheduler gocron.Scheduler
	templates *template.Templates
	geocoder  *geocode.CachedGeocoder
	router    *navigation.Router
	picker    *picker.Picker
	events    <-chan navigation.Event
	unsub     func()

	in      *bufio.Reader
	term    io.Writer
	outLock sync.Mutex
	output  io.Writer
}

func New(conf *config.Config, log *logger.Logger, loc *spreak.Localizer, in io.Reader, output, term io.Writer) (*Service, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	return newService(conf, log, loc, http.New(log), in, output, term)
}

func newService(conf *config.Config, log *logger.Logger, loc *spreak.Localizer, client *http.Client,
	in io.Reader, output, term io.Writer,
) (*Service, error) {
	if conf == nil {
		return nil, errors.New("config is required")
	}
	if loc == nil {
		return nil, errors.New("localizer is required")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	service := &Service{
		SignalSrc: stdLibSignalSource{},
		config:    conf,
		logger:    log,
		localizer: loc,
		http:      client,
		scheduler: scheduler,
		in:        bufio.NewReader(in),
		term:      term,
		output:    output,
	}

	lang := i18n.Tag(conf.Locale)
	service.templates, err = template.New(conf.Templates.Selection, loc, lang)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	service.geocoder, err = service.selectGeocodeProvider(lang)
	if err != nil {
		return nil, fmt.Errorf("failed to create geocoder: %w", err)
	}
	locators, err := service.selectLocators()
	if err != nil {
		return nil, fmt.Errorf("failed to create locators: %w", err)
	}
	chain, err := locate.NewChain(log, locators...)
	if err != nil {
		return nil, fmt.Errorf("failed to create locator chain: %w", err)
	}

	var override permission.Status
	if err = override.UnmarshalText([]byte(conf.Permission.Status)); err != nil {
		return nil, fmt.Errorf("invalid permission status in config: %w", err)
	}
	alerter := alert.NewTerminal(service.in, term, loc.Get(i18n.AlertDismiss))
	prompter := permission.NewTerminalPrompter(service.in, term, loc)
	manager, err := permission.NewManager(log, permission.NewFileStore(conf.Permission.StateFile), prompter, override)
	if err != nil {
		return nil, fmt.Errorf("failed to create permission manager: %w", err)
	}
	gate, err := permission.NewGate(log, manager, alerter, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to create permission gate: %w", err)
	}

	service.router = navigation.NewRouter(log)
	service.picker, err = picker.New(log, picker.Config{
		LocateTimeout:  conf.Picker.LocateTimeout,
		ResolveTimeout: conf.Picker.ResolveTimeout,
		Buffer:         conf.Picker.Buffer,
	}, picker.Deps{
		Gate:      gate,
		Locator:   chain,
		Geocoder:  service.geocoder,
		Navigator: service.router,
		Alerter:   alerter,
		Localizer: loc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create picker: %w", err)
	}

	return service, nil
}

// Run starts the background jobs and reads commands until the input ends, a quit command is given
// or ctx is canceled. A selection that is still being resolved when the input ends is awaited.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.createScheduledJob(ctx, s.config.GeoCoder.CachePurgeInterval, s.purgeGeocodeCache,
		"geocode_cache_purge_job"); err != nil {
		return err
	}
	s.scheduler.Start()

	s.events, s.unsub = s.router.Subscribe(s.config.Picker.Buffer)
	var wg sync.WaitGroup
	wg.Go(func() {
		if err := s.picker.Watch(ctx, s.events); err != nil && !errors.Is(err, picker.ErrClosed) &&
			!errors.Is(err, context.Canceled) {
			s.logger.Error("navigation watch ended", logger.Err(err))
		}
	})
	wg.Go(s.printSelections)

	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	wg.Go(func() {
		defer s.SignalSrc.Stop(sigChan)
		s.HandleSignals(ctx, sigChan)
	})
	if !s.config.Picker.IgnoreSuspend {
		wg.Go(func() { s.monitorSleepResume(ctx) })
	}

	// The REPL may block on input that never arrives, so it is not part of the wait group.
	replErr := make(chan error, 1)
	go func() { replErr <- s.repl(ctx) }()

	var err error
	select {
	case <-ctx.Done():
	case err = <-replErr:
		s.awaitSettled(ctx)
	}

	cancel()
	closeErr := s.picker.Close()
	wg.Wait()
	s.unsub()
	return errors.Join(err, closeErr, s.scheduler.Shutdown())
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

func (s *Service) purgeGeocodeCache(context.Context) {
	purged := s.geocoder.Purge()
	s.logger.Debug("purged geocode cache", slog.Int("purged", purged), slog.Int("remaining", s.geocoder.Len()))
}

func (s *Service) repl(ctx context.Context) error {
	s.termPrintln(helpText)
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.in.ReadString('\n')
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return fmt.Errorf("failed to read command: %w", err)
		}
		line = strings.TrimSpace(line)
		if !eof || line != "" {
			if quit := s.handleLine(ctx, line); quit {
				return nil
			}
		}
		if eof {
			return nil
		}
	}
}

func (s *Service) handleLine(ctx context.Context, line string) (quit bool) {
	if s.router.ActiveScreen() == navigation.ScreenMap {
		s.handleMapInput(ctx, line)
		return false
	}

	switch strings.ToLower(line) {
	case "":
	case "locate":
		if err := s.picker.Locate(ctx); err != nil {
			s.logger.Warn("failed to acquire device location", logger.Err(err))
		}
	case "map":
		if err := s.picker.PickOnMap(ctx); err != nil {
			s.logger.Error("failed to open map screen", logger.Err(err))
			return false
		}
		s.termPrintln(mapHelpText)
	case "hide":
		s.router.SetVisible(false)
	case "show":
		s.router.SetVisible(true)
	case "status":
		s.printStatus()
	case "help":
		s.termPrintln(helpText)
	case "quit", "exit":
		return true
	default:
		s.termPrintln(fmt.Sprintf("unknown command %q, %s", line, helpText))
	}
	return false
}

// handleMapInput plays the map screen: coordinates are returned as given, any other text is
// looked up with the geocoder.
func (s *Service) handleMapInput(ctx context.Context, line string) {
	if line == "" || strings.EqualFold(line, "back") {
		if err := s.router.Back(); err != nil {
			s.logger.Error("failed to leave map screen", logger.Err(err))
		}
		return
	}

	coord, ok := parseCoordinate(line)
	if !ok {
		var err error
		coord, err = s.geocoder.Search(ctx, line)
		if err != nil {
			s.logger.Warn("place search failed", slog.String("query", line), logger.Err(err))
			s.termPrintln(fmt.Sprintf("no place found for %q", line))
			return
		}
	}
	if _, err := s.router.Return(coord.Lat, coord.Lon); err != nil {
		s.logger.Error("failed to return from map screen", logger.Err(err))
	}
}

// awaitSettled waits until no navigation event is queued and no selection is pending. Both have to
// hold for two polls in a row, since the picker takes events off the queue before applying them.
func (s *Service) awaitSettled(ctx context.Context) {
	deadline := time.NewTimer(s.config.Picker.ResolveTimeout + settlePollInterval*4)
	defer deadline.Stop()
	ticker := time.NewTicker(settlePollInterval)
	defer ticker.Stop()

	stable := 0
	for stable < 2 {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			s.logger.Warn("gave up waiting for pending selection")
			return
		case <-ticker.C:
			if len(s.events) == 0 && s.picker.State() != picker.SelectionPending {
				stable++
				continue
			}
			stable = 0
		}
	}
}

func (s *Service) printSelections() {
	for selection := range s.picker.Selections() {
		s.printSelection(selection)
	}
}

func selectionView(selection picker.Selection) template.SelectionView {
	return template.SelectionView{
		Latitude:   selection.Coordinate.Lat,
		Longitude:  selection.Coordinate.Lon,
		Address:    selection.Address,
		Details:    selection.Details,
		Resolved:   selection.Resolved,
		Source:     selection.Source.String(),
		ResolvedAt: selection.ResolvedAt,
	}
}

func (s *Service) printSelection(selection picker.Selection) {
	text, err := s.templates.RenderSelection(selectionView(selection))
	if err != nil {
		s.logger.Error("failed to render selection", logger.Err(err))
		return
	}

	output := outputData{
		Text:      text,
		Latitude:  selection.Coordinate.Lat,
		Longitude: selection.Coordinate.Lon,
		Address:   selection.Address,
		Resolved:  selection.Resolved,
		Source:    selection.Source,
	}
	s.outLock.Lock()
	defer s.outLock.Unlock()
	if err = json.NewEncoder(s.output).Encode(output); err != nil {
		s.logger.Error("failed to encode selection", logger.Err(err))
	}
}

func (s *Service) printStatus() {
	selection, ok := s.picker.Current()
	event := s.router.Current()
	status := fmt.Sprintf("state: %s, visible: %t", s.picker.State(), event.Visible)
	if screen := s.router.ActiveScreen(); screen != "" {
		status += ", screen: " + screen
	}
	if ok {
		status += fmt.Sprintf(", selection: %s (%s)", selection.Coordinate, selection.Source)
		if selection.Resolved {
			status += ", address: " + selection.Address
		}
	}
	s.termPrintln(status)
	s.termPrintln("preview: " + s.preview())
}

// preview is the text shown in place of the map preview: a hint while nothing was picked, the
// coordinates while the address is resolved and the rendered selection afterwards.
func (s *Service) preview() string {
	selection, ok := s.picker.Current()
	switch {
	case !ok:
		return s.localizer.Get(i18n.NoLocationPicked)
	case s.picker.State() == picker.SelectionPending:
		return selection.Coordinate.String()
	}
	text, err := s.templates.RenderSelection(selectionView(selection))
	if err != nil {
		s.logger.Error("failed to render selection preview", logger.Err(err))
		return selection.Coordinate.String()
	}
	return text
}

func (s *Service) termPrintln(text string) {
	if _, err := fmt.Fprintln(s.term, text); err != nil {
		s.logger.Error("failed to write to terminal", logger.Err(err))
	}
}

// parseCoordinate parses "lat,lon". Range checks are left to the picker.
func parseCoordinate(val string) (geo.Coordinate, bool) {
	latVal, lonVal, found := strings.Cut(val, ",")
	if !found {
		return geo.Coordinate{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latVal), 64)
	if err != nil {
		return geo.Coordinate{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonVal), 64)
	if err != nil {
		return geo.Coordinate{}, false
	}
	return geo.Coordinate{Lat: lat, Lon: lon}, true
}
