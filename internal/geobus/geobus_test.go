// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/coffeewhere/internal/logger"
)

const testKey = "test"

func TestGeolocationState_HasChanged(t *testing.T) {
	t.Run("empty state always returns true", func(t *testing.T) {
		state := GeolocationState{}
		if !state.HasChanged(Coordinate{Lat: 1, Lon: 1, Acc: AccuracyZip}) {
			t.Error("expected state to have changed")
		}
	})
	t.Run("same coordinate return false", func(t *testing.T) {
		state := GeolocationState{}
		state.Update(Coordinate{Lat: 1, Lon: 1, Acc: AccuracyZip})
		if state.HasChanged(Coordinate{Lat: 1, Lon: 1, Acc: AccuracyZip}) {
			t.Error("expected state to not have changed")
		}
	})
	t.Run("different coordinate return true", func(t *testing.T) {
		tests := []struct {
			name    string
			lat     float64
			lon     float64
			acc     float64
			changed bool
		}{
			{"lat changes", 2, 1, AccuracyZip, true},
			{"lon changes", 1, 2, AccuracyZip, true},
			// a worse accuracy is not a significant change
			{"acc gets worse", 1, 1, AccuracyCity, false},
			{"acc gets better", 1, 1, 10, true},
			{"tiny move", 1.0001, 1, AccuracyZip, false},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				state := GeolocationState{}
				state.Update(Coordinate{Lat: 1, Lon: 1, Acc: AccuracyZip})
				if state.HasChanged(Coordinate{Lat: tc.lat, Lon: tc.lon, Acc: tc.acc}) != tc.changed {
					t.Error("expected state change to be", tc.changed, "but it wasn't")
				}
			})
		}
	})
}

func TestCoordinate(t *testing.T) {
	t.Run("rounding to four decimals", func(t *testing.T) {
		tests := []struct {
			in   float64
			want float64
		}{
			{40.41681234, 40.4168},
			{-3.70379, -3.7038},
			{40.41675, 40.4168},
			{-3.70385, -3.7039},
			{0, 0},
		}
		for _, tc := range tests {
			if got := Round(tc.in, 4); got != tc.want {
				t.Errorf("expected %f rounded to be %f, got %f", tc.in, tc.want, got)
			}
		}
	})
	t.Run("coordinate round keeps accuracy", func(t *testing.T) {
		c := Coordinate{Lat: 40.416812, Lon: -3.703812, Acc: 12}.Round(4)
		if c.Lat != 40.4168 || c.Lon != -3.7038 || c.Acc != 12 {
			t.Errorf("unexpected rounded coordinate: %+v", c)
		}
	})
	t.Run("degrees are formatted in shortest form", func(t *testing.T) {
		tests := map[float64]string{
			40.4168: "40.4168",
			-3.7038: "-3.7038",
			40.41:   "40.41",
			2:       "2",
		}
		for in, want := range tests {
			if got := FormatDegrees(in); got != want {
				t.Errorf("expected %q, got %q", want, got)
			}
		}
	})
	t.Run("truncate cuts digits", func(t *testing.T) {
		if got := Truncate(52.51299, 4); got != 52.5129 {
			t.Errorf("expected 52.5129, got %f", got)
		}
	})
	t.Run("validity", func(t *testing.T) {
		tests := []struct {
			name  string
			coord Coordinate
			valid bool
		}{
			{"madrid", Coordinate{Lat: 40.4168, Lon: -3.7038}, true},
			{"north pole", Coordinate{Lat: 90, Lon: 0}, true},
			{"latitude too big", Coordinate{Lat: 90.1, Lon: 0}, false},
			{"longitude too small", Coordinate{Lat: 0, Lon: -180.1}, false},
			{"NaN", Coordinate{Lat: math.NaN(), Lon: 0}, false},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				if tc.coord.Valid() != tc.valid {
					t.Errorf("expected validity to be %t", tc.valid)
				}
			})
		}
	})
	t.Run("distance between madrid and barcelona", func(t *testing.T) {
		madrid := Coordinate{Lat: 40.4168, Lon: -3.7038}
		barcelona := Coordinate{Lat: 41.3874, Lon: 2.1686}
		got := madrid.DistanceTo(barcelona)
		if got < 500000 || got > 510000 {
			t.Errorf("expected distance around 505km, got %f", got)
		}
		if madrid.DistanceTo(madrid) != 0 {
			t.Error("expected zero distance to itself")
		}
	})
}

func TestGeoBus(t *testing.T) {
	t.Run("nil logger fails", func(t *testing.T) {
		_, err := New(nil)
		if !errors.Is(err, ErrLoggerRequired) {
			t.Errorf("expected error to be %s, got %v", ErrLoggerRequired, err)
		}
	})
	t.Run("first result is broadcast to subscribers", func(t *testing.T) {
		bus := testBus(t)
		sub, unsub := bus.Subscribe(testKey, 1)
		defer unsub()

		bus.Publish(Result{Key: testKey, Lat: 1, Lon: 2, AccuracyMeters: 10, Source: "a"})
		select {
		case r := <-sub:
			if r.Lat != 1 || r.Lon != 2 {
				t.Errorf("unexpected result: %+v", r)
			}
		default:
			t.Fatal("expected a result to be broadcast")
		}
	})
	t.Run("invalid results are dropped", func(t *testing.T) {
		bus := testBus(t)
		bus.Publish(Result{Key: testKey, Lat: 100, Lon: 2, AccuracyMeters: 10, Source: "a"})
		if _, ok := bus.Best(testKey); ok {
			t.Error("expected no best result")
		}
	})
	t.Run("subscribers get the current best result right away", func(t *testing.T) {
		bus := testBus(t)
		bus.Publish(Result{Key: testKey, Lat: 1, Lon: 2, AccuracyMeters: 10, Source: "a"})
		sub, unsub := bus.Subscribe(testKey, 1)
		defer unsub()
		select {
		case <-sub:
		default:
			t.Fatal("expected the best result to be delivered on subscribe")
		}
	})
	t.Run("worse results do not replace the best", func(t *testing.T) {
		bus := testBus(t)
		bus.Publish(Result{Key: testKey, Lat: 1, Lon: 2, AccuracyMeters: 10, Source: "gps"})
		bus.Publish(Result{Key: testKey, Lat: 5, Lon: 5, AccuracyMeters: AccuracyCity, Source: "geoip"})
		best, ok := bus.Best(testKey)
		if !ok {
			t.Fatal("expected a best result")
		}
		if best.Source != "gps" {
			t.Errorf("expected best source to be gps, got %s", best.Source)
		}
	})
	t.Run("unsubscribing twice does not panic", func(t *testing.T) {
		bus := testBus(t)
		_, unsub := bus.Subscribe(testKey, 1)
		unsub()
		unsub()
	})
	t.Run("best within max age", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			bus := testBus(t)
			bus.Publish(Result{Key: testKey, Lat: 1, Lon: 2, AccuracyMeters: 10, Source: "a"})
			if _, ok := bus.BestWithin(testKey, time.Second*10); !ok {
				t.Error("expected a fresh result")
			}
			time.Sleep(time.Second * 11)
			if _, ok := bus.BestWithin(testKey, time.Second*10); ok {
				t.Error("expected the result to be too old")
			}
			if _, ok := bus.BestWithin(testKey, 0); ok {
				t.Error("expected a zero max age to never accept cached results")
			}
		})
	})
	t.Run("expired results are not returned", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			bus := testBus(t)
			bus.Publish(Result{Key: testKey, Lat: 1, Lon: 2, AccuracyMeters: 10, Source: "a", TTL: time.Minute})
			time.Sleep(time.Minute * 2)
			if _, ok := bus.Best(testKey); ok {
				t.Error("expected result to be expired")
			}
		})
	})
}

func TestPollStream(t *testing.T) {
	t.Run("failed lookups are skipped and changes are emitted", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			calls := 0
			locate := func(context.Context) (Coordinate, error) {
				calls++
				switch calls {
				case 1:
					return Coordinate{}, errors.New("intentionally failing")
				case 2, 3:
					return Coordinate{Lat: 1, Lon: 2, Acc: 10}, nil
				default:
					return Coordinate{Lat: 3, Lon: 4, Acc: 10}, nil
				}
			}
			src := PollSource{Name: "poll", Period: time.Millisecond * 10, TTL: time.Minute}
			stream := PollStream(ctx, testKey, src, locate)

			first := <-stream
			if first.Lat != 1 || first.Source != "poll" || first.TTL != time.Minute {
				t.Errorf("unexpected first result: %+v", first)
			}
			second := <-stream
			if second.Lat != 3 {
				t.Errorf("expected unchanged position to be skipped, got %+v", second)
			}
			cancel()
			for range stream {
			}
		})
	})
}

type testProvider struct {
	name    string
	results []Result
	panics  bool
}

func (p *testProvider) Name() string { return p.name }

func (p *testProvider) LookupStream(ctx context.Context, key string) <-chan Result {
	if p.panics {
		panic("intentionally panicking")
	}
	out := make(chan Result)
	go func() {
		defer close(out)
		for _, r := range p.results {
			r.Key = key
			select {
			case <-ctx.Done():
				return
			case out <- r:
			}
		}
		<-ctx.Done()
	}()
	return out
}

func TestOrchestrator_Track(t *testing.T) {
	t.Run("results of all providers are published", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			bus := testBus(t)
			sub, unsub := bus.Subscribe(testKey, 4)
			defer unsub()

			orch := bus.NewOrchestrator([]Provider{
				&testProvider{name: "panics", panics: true},
				&testProvider{name: "file", results: []Result{{Lat: 1, Lon: 2, AccuracyMeters: 5, Source: "file"}}},
			})
			ctx, cancel := context.WithCancel(t.Context())
			done := make(chan struct{})
			go func() {
				orch.Track(ctx, testKey)
				close(done)
			}()

			r := <-sub
			if r.Source != "file" {
				t.Errorf("expected result from file provider, got %s", r.Source)
			}
			cancel()
			<-done
		})
	})
}

func testBus(t *testing.T) *GeoBus {
	t.Helper()
	bus, err := New(logger.NewLogger(slog.LevelDebug, io.Discard))
	if err != nil {
		t.Fatalf("failed to create geobus: %s", err)
	}
	return bus
}
