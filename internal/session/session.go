// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package session holds the state that the front-ends render: permission, location, the shop
// list and the selected shop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/wneessen/coffeewhere/internal/geobus"
	"github.com/wneessen/coffeewhere/internal/geocode"
	"github.com/wneessen/coffeewhere/internal/location"
	"github.com/wneessen/coffeewhere/internal/logger"
	"github.com/wneessen/coffeewhere/internal/mapview"
	"github.com/wneessen/coffeewhere/internal/permission"
	"github.com/wneessen/coffeewhere/internal/poi"
)

var (
	ErrNoLocation       = errors.New("no location acquired yet")
	ErrUnknownShop      = errors.New("unknown shop")
	ErrSessionClosed    = errors.New("session is closed")
	ErrGateRequired     = errors.New("permission gate is required")
	ErrAcquirerRequired = errors.New("location acquirer is required")
	ErrFinderRequired   = errors.New("shop finder is required")
	ErrResolverRequired = errors.New("address resolver is required")
	ErrLoggerRequired   = errors.New("logger is required")
)

// Snapshot is a copy of the session state. A nil Location means the location is still pending,
// nil Shops means the shops are still loading.
type Snapshot struct {
	Permission permission.State   `json:"permission"`
	Location   *geobus.Coordinate `json:"location"`
	Shops      []poi.Shop         `json:"shops"`
	Selected   *poi.Shop          `json:"selected,omitempty"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Session wires the permission gate, the location acquirer, the shop finder and the address
// resolver. Shops and addresses are only looked up once a location was published.
type Session struct {
	gate     *permission.Gate
	acquirer *location.Acquirer
	finder   *poi.Finder
	resolver *geocode.Resolver
	mapview  *mapview.Controller
	logger   *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	locateMu  sync.Mutex
	mu        sync.RWMutex
	shops     []poi.Shop
	selected  string
	updatedAt time.Time
}

func New(gate *permission.Gate, acquirer *location.Acquirer, finder *poi.Finder, resolver *geocode.Resolver,
	log *logger.Logger,
) (*Session, error) {
	switch {
	case gate == nil:
		return nil, ErrGateRequired
	case acquirer == nil:
		return nil, ErrAcquirerRequired
	case finder == nil:
		return nil, ErrFinderRequired
	case resolver == nil:
		return nil, ErrResolverRequired
	case log == nil:
		return nil, ErrLoggerRequired
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		gate:     gate,
		acquirer: acquirer,
		finder:   finder,
		resolver: resolver,
		mapview:  mapview.NewController(mapview.DefaultBuffer),
		logger:   log,
		ctx:      ctx,
		cancel:   cancel,
	}
	acquirer.OnPublish(func(coord geobus.Coordinate) {
		sess.mapview.Update(coord, nil)
	})
	return sess, nil
}

// Map returns the map command channel of the session.
func (s *Session) Map() *mapview.Controller {
	return s.mapview
}

// Start checks the permission, asks for it if it is not granted yet and, once granted, acquires
// the location and searches the shops around it.
func (s *Session) Start(ctx context.Context) error {
	ctx, cancel := s.bind(ctx)
	defer cancel()

	state := s.gate.Init(ctx)
	if state != permission.StateGranted {
		state = s.gate.Request(ctx)
	}
	if state != permission.StateGranted {
		s.logger.Info("location access denied, not looking for shops")
		return nil
	}
	return s.locate(ctx)
}

// RequestPermission asks for location access again. With revisit set, a stored answer is
// forgotten first. If access is granted and no location exists yet, the location is acquired.
func (s *Session) RequestPermission(ctx context.Context, revisit bool) (permission.State, error) {
	ctx, cancel := s.bind(ctx)
	defer cancel()

	var state permission.State
	if revisit {
		state = s.gate.Revisit(ctx)
	} else {
		state = s.gate.Request(ctx)
	}
	if state != permission.StateGranted {
		return state, nil
	}
	return state, s.locate(ctx)
}

// RefreshShops queries the shops around the session location again.
func (s *Session) RefreshShops(ctx context.Context) error {
	coord, ok := s.acquirer.Coordinate()
	if !ok {
		return ErrNoLocation
	}
	ctx, cancel := s.bind(ctx)
	defer cancel()
	return s.findShops(ctx, coord)
}

// SelectShop marks the shop with the given id as selected and updates the map.
func (s *Session) SelectShop(id string) (poi.Shop, error) {
	coord, ok := s.acquirer.Coordinate()
	if !ok {
		return poi.Shop{}, ErrNoLocation
	}

	s.mu.Lock()
	shop, ok := s.lookup(id)
	if !ok {
		s.mu.Unlock()
		return poi.Shop{}, fmt.Errorf("%w: %s", ErrUnknownShop, id)
	}
	s.selected = shop.ID
	s.mu.Unlock()

	s.mapview.Update(coord, &shop)
	return shop, nil
}

// ResolveAddress returns the address of the shop with the given id. The shop name is used if the
// geocoder knows no name for the place.
func (s *Session) ResolveAddress(ctx context.Context, id string) (geocode.Address, error) {
	if _, ok := s.acquirer.Coordinate(); !ok {
		return geocode.Address{}, ErrNoLocation
	}
	s.mu.RLock()
	shop, ok := s.lookup(id)
	s.mu.RUnlock()
	if !ok {
		return geocode.Address{}, fmt.Errorf("%w: %s", ErrUnknownShop, id)
	}

	ctx, cancel := s.bind(ctx)
	defer cancel()
	return s.resolver.Resolve(ctx, shop.Coordinate(), shop.Name)
}

// Recenter moves the map back to the session location.
func (s *Session) Recenter() error {
	coord, ok := s.acquirer.Coordinate()
	if !ok {
		return ErrNoLocation
	}
	s.mapview.Recenter(coord)
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{Permission: s.gate.State()}
	if coord, ok := s.acquirer.Coordinate(); ok {
		snap.Location = &coord
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.shops != nil {
		snap.Shops = slices.Clone(s.shops)
	}
	if shop, ok := s.lookup(s.selected); ok {
		snap.Selected = &shop
	}
	snap.UpdatedAt = s.updatedAt
	return snap
}

// Close tears the session down. A location fix that is still settling is dropped and results of
// requests in flight are discarded.
func (s *Session) Close() {
	s.cancel()
}

func (s *Session) locate(ctx context.Context) error {
	s.locateMu.Lock()
	defer s.locateMu.Unlock()

	if _, ok := s.acquirer.Coordinate(); ok {
		s.mu.RLock()
		loaded := s.shops != nil
		s.mu.RUnlock()
		if loaded {
			return nil
		}
	}

	coord, err := s.acquirer.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire location: %w", err)
	}
	return s.findShops(ctx, coord)
}

func (s *Session) findShops(ctx context.Context, coord geobus.Coordinate) error {
	shops := s.finder.FindShops(ctx, coord)
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.shops = shops
	s.updatedAt = time.Now()
	if _, ok := s.lookup(s.selected); !ok {
		s.selected = ""
	}
	s.mu.Unlock()

	s.logger.Debug("shop list updated", slog.Int("count", len(shops)))
	return nil
}

// lookup must be called with mu held.
func (s *Session) lookup(id string) (poi.Shop, bool) {
	if id == "" {
		return poi.Shop{}, false
	}
	for _, shop := range s.shops {
		if shop.ID == id {
			return shop, true
		}
	}
	return poi.Shop{}, false
}

// bind returns a context that is also cancelled when the session is closed.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.ctx.Err() != nil {
		ctx, cancel := context.WithCancelCause(ctx)
		cancel(ErrSessionClosed)
		return ctx, func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
