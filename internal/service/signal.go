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

// HandleSignals refreshes the shops on SIGUSR1 and logs the session state on SIGUSR2.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				s.refreshShops(ctx)
			case syscall.SIGUSR2:
				snap := s.session.Snapshot()
				attrs := []any{
					slog.String("permission", snap.Permission.String()),
					slog.Int("shops", len(snap.Shops)),
				}
				if snap.Location != nil {
					attrs = append(attrs, slog.Float64("latitude", snap.Location.Lat),
						slog.Float64("longitude", snap.Location.Lon))
				}
				s.logger.Info("current session state", attrs...)
			}
		}
	}
}
