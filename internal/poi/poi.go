// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package poi finds coffee shops around a coordinate.
package poi

import (
	"context"
	"errors"
	"log/slog"

	"github.com/wneessen/coffeewhere/internal/geobus"
	"github.com/wneessen/coffeewhere/internal/logger"
)

// UnnamedShop is the name of shops that carry no name tag.
const UnnamedShop = "Unnamed café"

var (
	ErrProviderRequired  = errors.New("shop provider is required")
	ErrLoggerRequired    = errors.New("logger is required")
	ErrMalformedResponse = errors.New("malformed response")
)

// Shop is a coffee shop. ID is the stable identifier of the data source.
type Shop struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Coordinate returns the position of the shop.
func (s Shop) Coordinate() geobus.Coordinate {
	return geobus.Coordinate{Lat: s.Latitude, Lon: s.Longitude}
}

// Provider queries a point-of-interest service.
type Provider interface {
	Name() string
	Search(ctx context.Context, coord geobus.Coordinate) ([]Shop, error)
}

// Finder looks up shops through a Provider. Every call queries the provider again.
type Finder struct {
	provider Provider
	logger   *logger.Logger
}

func NewFinder(provider Provider, log *logger.Logger) (*Finder, error) {
	if provider == nil {
		return nil, ErrProviderRequired
	}
	if log == nil {
		return nil, ErrLoggerRequired
	}
	return &Finder{provider: provider, logger: log}, nil
}

// Search returns the provider result including its error.
func (f *Finder) Search(ctx context.Context, coord geobus.Coordinate) ([]Shop, error) {
	shops, err := f.provider.Search(ctx, coord)
	if err != nil {
		return nil, err
	}
	if shops == nil {
		shops = []Shop{}
	}
	return shops, nil
}

// FindShops returns the shops around coord. Any failure is logged and yields an empty list, so
// callers cannot tell a failed lookup from an area without shops.
func (f *Finder) FindShops(ctx context.Context, coord geobus.Coordinate) []Shop {
	shops, err := f.Search(ctx, coord)
	switch {
	case err == nil:
		f.logger.Debug("shops found", slog.String("provider", f.provider.Name()), slog.Int("count", len(shops)))
		return shops
	case errors.Is(err, ErrMalformedResponse):
		f.logger.Warn("shop search returned a malformed response", slog.String("provider", f.provider.Name()),
			logger.Err(err))
	case ctx.Err() != nil:
		f.logger.Debug("shop search cancelled", slog.String("provider", f.provider.Name()))
	default:
		f.logger.Error("failed to search shops", slog.String("provider", f.provider.Name()), logger.Err(err))
	}
	return []Shop{}
}
