// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// stdLibSignalSource is the production implementation.
type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleSignals toggles the visibility of the picker on SIGUSR1 and logs the current selection
// on SIGUSR2.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				if screen := s.router.ActiveScreen(); screen != "" {
					s.logger.Debug("not toggling picker while a screen is on top", slog.String("screen", screen))
					continue
				}
				s.router.SetVisible(!s.router.Current().Visible)
			case syscall.SIGUSR2:
				selection, _ := s.picker.Current()
				s.logger.Info("current selection", slog.String("state", s.picker.State().String()),
					slog.String("address", selection.Address),
					slog.Float64("latitude", selection.Coordinate.Lat),
					slog.Float64("longitude", selection.Coordinate.Lon))
			}
		}
	}
}
