// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/coffeewhere/internal/logger"
)

const (
	loginInterface    = "org.freedesktop.login1.Manager"
	prepareForSleep   = "PrepareForSleep"
	sleepSignalBuffer = 8

	resumeDebounceWindow = 2 * time.Second
	networkWakeupDelay   = 10 * time.Second
	busReconnectDelay    = 5 * time.Second
	subscribeRetryDelay  = 10 * time.Second
	resubscribeDelay     = 2 * time.Second
)

// sleepBus is the part of a D-Bus connection the resume watcher uses. *dbus.Conn implements it.
type sleepBus interface {
	AddMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

func connectSystemBus() (sleepBus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// resumeDebounce drops resume events that follow the previous one within window.
type resumeDebounce struct {
	window time.Duration
	last   time.Time
}

func (d *resumeDebounce) allow(now time.Time) bool {
	if !d.last.IsZero() && now.Sub(d.last) < d.window {
		return false
	}
	d.last = now
	return true
}

// resumed reports whether sig is a PrepareForSleep(false) signal, sent after the system woke up.
func resumed(sig *dbus.Signal) bool {
	if sig == nil || len(sig.Body) != 1 {
		return false
	}
	sleeping, ok := sig.Body[0].(bool)
	return ok && !sleeping
}

// watchResume refreshes the shop list whenever the system wakes up from sleep. Lost bus
// connections are re-established until ctx is cancelled.
func (s *Service) watchResume(ctx context.Context) {
	debounce := &resumeDebounce{window: resumeDebounceWindow}
	for {
		bus, ok := s.subscribeSleep(ctx)
		if !ok {
			return
		}

		sigCh := make(chan *dbus.Signal, sleepSignalBuffer)
		bus.Signal(sigCh)
		s.logger.Debug("watching for system resume", slog.String("interface", loginInterface),
			slog.String("member", prepareForSleep))
		s.consumeSleepSignals(ctx, sigCh, debounce)

		bus.RemoveSignal(sigCh)
		if err := bus.Close(); err != nil {
			s.logger.Error("failed to close system bus connection", logger.Err(err))
		}
		if !waitCtx(ctx, resubscribeDelay) {
			return
		}
	}
}

// subscribeSleep connects to the system bus and subscribes to PrepareForSleep. It retries until
// it succeeds or ctx is cancelled.
func (s *Service) subscribeSleep(ctx context.Context) (sleepBus, bool) {
	for {
		bus, err := s.connectBus()
		if err != nil {
			s.logger.Debug("system bus not available", logger.Err(err))
			if !waitCtx(ctx, busReconnectDelay) {
				return nil, false
			}
			continue
		}

		err = bus.AddMatchSignal(dbus.WithMatchInterface(loginInterface), dbus.WithMatchMember(prepareForSleep))
		if err == nil {
			return bus, true
		}
		s.logger.Error("failed to subscribe to dbus signal", slog.String("interface", loginInterface),
			slog.String("member", prepareForSleep), logger.Err(err))
		if err = bus.Close(); err != nil {
			s.logger.Error("failed to close system bus connection", logger.Err(err))
		}
		if !waitCtx(ctx, subscribeRetryDelay) {
			return nil, false
		}
	}
}

// consumeSleepSignals returns when ctx is cancelled or the bus closed sigCh.
func (s *Service) consumeSleepSignals(ctx context.Context, sigCh <-chan *dbus.Signal, debounce *resumeDebounce) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			if !resumed(sig) || !debounce.allow(time.Now()) {
				continue
			}
			if !waitCtx(ctx, s.wakeupDelay) {
				return
			}
			s.logger.Debug("system resumed, refreshing coffee shops")
			s.refreshShops(ctx)
		}
	}
}

// waitCtx waits for d and returns false if ctx was cancelled first.
func waitCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
