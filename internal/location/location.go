// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package location acquires a single device position per session.
package location

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/coffeewhere/internal/geobus"
	"github.com/wneessen/coffeewhere/internal/logger"
)

const (
	busKey = "device"

	// PreciseAccuracy is the accuracy in meters a high accuracy acquisition waits for.
	PreciseAccuracy = 250.0
)

var (
	ErrBusRequired         = errors.New("geobus is required")
	ErrLoggerRequired      = errors.New("logger is required")
	ErrLocationTimeout     = errors.New("timed out waiting for a location fix")
	ErrLocationUnavailable = errors.New("no location source available")
)

// Options control a single acquisition.
type Options struct {
	// HighAccuracy waits up to Timeout for a fix of PreciseAccuracy or better instead of taking
	// the first one. The precise sources (gpsd, WiFi) are only configured with it.
	HighAccuracy bool
	// Timeout bounds the wait for a fresh fix.
	Timeout time.Duration
	// MaximumAge is the oldest cached fix that is accepted without asking the sources.
	MaximumAge time.Duration
	// SettleDelay is the time between the arrival of a fix and its publication.
	SettleDelay time.Duration
}

// Acquirer obtains one coordinate and publishes it once the settle delay has passed.
type Acquirer struct {
	bus       *geobus.GeoBus
	providers []geobus.Provider
	logger    *logger.Logger
	opts      Options

	once        sync.Once
	mu          sync.RWMutex
	coord       geobus.Coordinate
	published   bool
	subscribers []func(geobus.Coordinate)
}

// New returns an Acquirer that tracks providers on bus.
func New(bus *geobus.GeoBus, providers []geobus.Provider, opts Options, log *logger.Logger) (*Acquirer, error) {
	if bus == nil {
		return nil, ErrBusRequired
	}
	if log == nil {
		return nil, ErrLoggerRequired
	}
	return &Acquirer{
		bus:       bus,
		providers: providers,
		logger:    log,
		opts:      opts,
	}, nil
}

// OnPublish registers fn to be called with the coordinate when it is published. fn is called
// right away if the coordinate already was published.
func (a *Acquirer) OnPublish(fn func(geobus.Coordinate)) {
	a.mu.Lock()
	if a.published {
		coord := a.coord
		a.mu.Unlock()
		fn(coord)
		return
	}
	a.subscribers = append(a.subscribers, fn)
	a.mu.Unlock()
}

// Coordinate returns the published coordinate.
func (a *Acquirer) Coordinate() (geobus.Coordinate, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.coord, a.published
}

// Acquire returns the session coordinate, acquiring it first if needed. The fix is held back for
// the settle delay; cancelling ctx in the meantime drops it and nothing is published. Failures are
// logged and returned, there is no retry.
func (a *Acquirer) Acquire(ctx context.Context) (geobus.Coordinate, error) {
	if coord, ok := a.Coordinate(); ok {
		return coord, nil
	}

	fix, err := a.fix(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return geobus.Coordinate{}, ctx.Err()
		}
		a.logger.Error("failed to acquire location", logger.Err(err))
		return geobus.Coordinate{}, err
	}
	a.logger.Debug("location fix received, settling", slog.String("source", fix.Source),
		slog.Float64("accuracy", fix.AccuracyMeters), slog.Duration("delay", a.opts.SettleDelay))

	settle := time.NewTimer(a.opts.SettleDelay)
	defer settle.Stop()
	select {
	case <-ctx.Done():
		a.logger.Debug("location publish cancelled")
		return geobus.Coordinate{}, ctx.Err()
	case <-settle.C:
	}

	a.publish(fix.Coordinate())
	coord, _ := a.Coordinate()
	return coord, nil
}

func (a *Acquirer) publish(coord geobus.Coordinate) {
	a.once.Do(func() {
		a.mu.Lock()
		a.coord = coord
		a.published = true
		subscribers := a.subscribers
		a.subscribers = nil
		a.mu.Unlock()

		a.logger.Info("location acquired", slog.Float64("lat", coord.Lat), slog.Float64("lon", coord.Lon),
			slog.Float64("accuracy", coord.Acc))
		for _, fn := range subscribers {
			fn(coord)
		}
	})
}

// fix returns a cached result if it is young enough. Otherwise it returns the first fresh result
// the providers deliver or, with HighAccuracy, the first precise one. If no precise result
// arrives within the timeout, the most accurate fresh one is used.
func (a *Acquirer) fix(ctx context.Context) (geobus.Result, error) {
	if r, ok := a.bus.BestWithin(busKey, a.opts.MaximumAge); ok {
		return r, nil
	}
	if len(a.providers) == 0 {
		return geobus.Result{}, ErrLocationUnavailable
	}

	start := time.Now()
	ctxTrack, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	sub, unsub := a.bus.Subscribe(busKey, len(a.providers)+1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.bus.NewOrchestrator(a.providers).Track(ctxTrack, busKey)
	}()
	defer func() {
		cancel()
		<-done
	}()

	var best geobus.Result
	for {
		select {
		case r := <-sub:
			// stale results handed out on subscribe are not fresh fixes
			if r.At.Before(start) {
				continue
			}
			if !a.opts.HighAccuracy || a.precise(r) {
				return r, nil
			}
			if best.Key == "" || r.AccuracyMeters < best.AccuracyMeters {
				best = r
			}
			a.logger.Debug("coarse location fix received, waiting for a precise one",
				slog.String("source", r.Source), slog.Float64("accuracy", r.AccuracyMeters))
		case <-ctxTrack.Done():
			if err := ctx.Err(); err != nil {
				return geobus.Result{}, err
			}
			if r, ok := a.bus.Best(busKey); ok && !r.At.Before(start) &&
				(best.Key == "" || r.AccuracyMeters < best.AccuracyMeters) {
				best = r
			}
			if best.Key == "" {
				return geobus.Result{}, ErrLocationTimeout
			}
			return best, nil
		}
	}
}

func (a *Acquirer) precise(r geobus.Result) bool {
	return r.AccuracyMeters > 0 && r.AccuracyMeters <= PreciseAccuracy
}
