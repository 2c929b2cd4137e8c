// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/coffeewhere/internal/geobus"
)

const (
	name = "geolocation_file"

	// Accuracy of a manually maintained position. The file is trusted over every network source.
	Accuracy = 5
)

var ErrNoCoordinates = errors.New("no valid coordinates found in geolocation file")

// GeolocationFileProvider reads a "lat,lon" line from a file. Empty lines and lines starting
// with # are ignored, the first parsable line wins.
type GeolocationFileProvider struct {
	name     string
	path     string
	period   time.Duration
	ttl      time.Duration
	locateFn geobus.LocateFunc
}

// NewGeolocationFileProvider returns a provider for the file at path.
func NewGeolocationFileProvider(path string) *GeolocationFileProvider {
	provider := &GeolocationFileProvider{
		name:   name,
		path:   path,
		period: time.Minute * 2,
		ttl:    time.Hour,
	}
	provider.locateFn = provider.locate
	return provider
}

func (p *GeolocationFileProvider) Name() string {
	return p.name
}

// LookupStream re-reads the file once per period and emits the position whenever it changed.
func (p *GeolocationFileProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	src := geobus.PollSource{Name: p.name, Period: p.period, TTL: p.ttl}
	return geobus.PollStream(ctx, key, src, p.locateFn)
}

func (p *GeolocationFileProvider) locate(context.Context) (geobus.Coordinate, error) {
	lat, lon, err := p.readFile()
	if err != nil {
		return geobus.Coordinate{}, err
	}
	return geobus.Coordinate{Lat: lat, Lon: lon, Acc: Accuracy}, nil
}

func (p *GeolocationFileProvider) readFile() (lat, lon float64, err error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read geolocation file %q: %w", p.path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		latStr, lonStr, ok := strings.Cut(line, ",")
		if !ok {
			continue
		}
		if lat, err = strconv.ParseFloat(strings.TrimSpace(latStr), 64); err != nil {
			continue
		}
		if lon, err = strconv.ParseFloat(strings.TrimSpace(lonStr), 64); err != nil {
			continue
		}
		return lat, lon, nil
	}
	return 0, 0, ErrNoCoordinates
}
