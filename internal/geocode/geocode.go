// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geocode resolves coordinates into structured addresses.
package geocode

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/vorlif/spreak"

	"github.com/wneessen/coffeewhere/internal/geobus"
	"github.com/wneessen/coffeewhere/internal/logger"
)

// MsgResolveFailed is the message shown instead of a partial address.
const MsgResolveFailed = "Error retrieving the address."

var (
	ErrGeocoderRequired  = errors.New("geocoder is required")
	ErrLoggerRequired    = errors.New("logger is required")
	ErrLocalizerRequired = errors.New("localizer is required")
)

type Address struct {
	Name        string  `json:"name,omitempty"`
	Road        string  `json:"road,omitempty"`
	HouseNumber string  `json:"house_number,omitempty"`
	City        string  `json:"city,omitempty"`
	District    string  `json:"district,omitempty"`
	Region      string  `json:"region,omitempty"`
	Postcode    string  `json:"postcode,omitempty"`
	Country     string  `json:"country,omitempty"`
	DisplayName string  `json:"display_name,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
}

// Street returns road and house number as one line.
func (a Address) Street() string {
	return strings.TrimSpace(a.Road + " " + a.HouseNumber)
}

type Geocoder interface {
	Name() string
	Reverse(ctx context.Context, coord geobus.Coordinate) (Address, error)
}

// ResolveError is returned by Resolver.Resolve. Its message is the localized generic error text,
// the underlying failure is available through Unwrap.
type ResolveError struct {
	msg   string
	cause error
}

func (e *ResolveError) Error() string {
	return e.msg
}

func (e *ResolveError) Unwrap() error {
	return e.cause
}

// Resolver issues a single reverse geocoding query per call. Nothing is cached or retried.
type Resolver struct {
	geocoder  Geocoder
	localizer *spreak.Localizer
	logger    *logger.Logger
}

func NewResolver(geocoder Geocoder, localizer *spreak.Localizer, log *logger.Logger) (*Resolver, error) {
	if geocoder == nil {
		return nil, ErrGeocoderRequired
	}
	if localizer == nil {
		return nil, ErrLocalizerRequired
	}
	if log == nil {
		return nil, ErrLoggerRequired
	}
	return &Resolver{geocoder: geocoder, localizer: localizer, logger: log}, nil
}

// Resolve returns the address at coord. If the service returns neither a place name nor an
// amenity, fallbackName is used as the address name.
func (r *Resolver) Resolve(ctx context.Context, coord geobus.Coordinate, fallbackName string) (Address, error) {
	address, err := r.geocoder.Reverse(ctx, coord)
	if err != nil {
		r.logger.Error("failed to resolve address", slog.String("geocoder", r.geocoder.Name()),
			slog.Float64("lat", coord.Lat), slog.Float64("lon", coord.Lon), logger.Err(err))
		return Address{}, &ResolveError{msg: r.localizer.Get(MsgResolveFailed), cause: err}
	}
	if strings.TrimSpace(address.Name) == "" {
		address.Name = fallbackName
	}
	return address, nil
}
