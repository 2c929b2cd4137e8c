// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"time"
)

// LocateFunc performs a single position lookup.
type LocateFunc func(ctx context.Context) (Coordinate, error)

// PollSource describes a periodically polled provider.
type PollSource struct {
	Name   string
	Period time.Duration
	TTL    time.Duration
}

// PollStream calls locate right away and then once per period until ctx is done. Failed lookups
// are skipped, positions that did not change significantly are not emitted again.
func PollStream(ctx context.Context, key string, src PollSource, locate LocateFunc) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		state := GeolocationState{}
		firstRun := true

		for {
			if !firstRun {
				if !sleepOrDone(ctx, src.Period) {
					return
				}
			}
			firstRun = false

			coord, err := locate(ctx)
			if err != nil || !coord.Valid() {
				continue
			}
			if !state.HasChanged(coord) {
				continue
			}
			state.Update(coord)

			select {
			case <-ctx.Done():
				return
			case out <- src.Result(key, coord):
			}
		}
	}()
	return out
}

// Result composes a Result for coord stamped with the source's name and TTL.
func (s PollSource) Result(key string, coord Coordinate) Result {
	return Result{
		Key:            key,
		Lat:            coord.Lat,
		Lon:            coord.Lon,
		AccuracyMeters: coord.Acc,
		Source:         s.Name,
		At:             time.Now(),
		TTL:            s.TTL,
	}
}
