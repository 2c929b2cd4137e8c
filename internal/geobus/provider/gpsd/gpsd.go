// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"errors"
	"time"

	"github.com/wneessen/coffeewhere/internal/geobus"
	"github.com/wneessen/coffeewhere/internal/gpspoll"
)

const (
	name        = "gpsd"
	host        = "localhost"
	port        = "2947"
	pollTimeout = time.Second * 5
)

var ErrNoFix = errors.New("gpsd has no 2D fix")

// GeolocationGPSDProvider polls a local gpsd for its current fix.
type GeolocationGPSDProvider struct {
	name     string
	period   time.Duration
	ttl      time.Duration
	locateFn func(ctx context.Context) (gpspoll.Fix, error)
}

func NewGeolocationGPSDProvider() *GeolocationGPSDProvider {
	provider := &GeolocationGPSDProvider{
		name:   name,
		period: time.Second * 30,
		ttl:    time.Minute * 2,
	}
	provider.locateFn = gpspoll.New(host, port).Poll
	return provider
}

func (p *GeolocationGPSDProvider) Name() string {
	return p.name
}

func (p *GeolocationGPSDProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	src := geobus.PollSource{Name: p.name, Period: p.period, TTL: p.ttl}
	return geobus.PollStream(ctx, key, src, p.locate)
}

func (p *GeolocationGPSDProvider) locate(ctx context.Context) (geobus.Coordinate, error) {
	ctxPoll, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	fix, err := p.locateFn(ctxPoll)
	if err != nil {
		return geobus.Coordinate{}, err
	}
	if !fix.Has2DFix() {
		return geobus.Coordinate{}, ErrNoFix
	}
	return geobus.Coordinate{Lat: fix.Lat, Lon: fix.Lon, Acc: fix.Acc}, nil
}
