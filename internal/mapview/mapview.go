// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package mapview provides the typed command channel that drives an external map widget.
package mapview

import (
	"sync"

	"github.com/wneessen/coffeewhere/internal/geobus"
	"github.com/wneessen/coffeewhere/internal/poi"
)

const (
	// DefaultBuffer is the number of pending commands kept for a slow consumer.
	DefaultBuffer = 32
	// DefaultZoom is the zoom level used when the map centers on the user.
	DefaultZoom = 15
	// DefaultPadding is the padding in pixels around fitted bounds.
	DefaultPadding = 50
)

const (
	KindSetUserMarker       = "set_user_marker"
	KindSetSelectedMarker   = "set_selected_marker"
	KindClearSelectedMarker = "clear_selected_marker"
	KindFitBounds           = "fit_bounds"
	KindSetView             = "set_view"
	KindOpenUserPopup       = "open_user_popup"
)

// Command is a single instruction for the map layer.
type Command interface {
	Kind() string
}

type SetUserMarker struct {
	Position geobus.Coordinate `json:"position"`
}

type SetSelectedMarker struct {
	Shop poi.Shop `json:"shop"`
}

type ClearSelectedMarker struct{}

type FitBounds struct {
	SouthWest geobus.Coordinate `json:"south_west"`
	NorthEast geobus.Coordinate `json:"north_east"`
	Padding   int               `json:"padding"`
}

type SetView struct {
	Center geobus.Coordinate `json:"center"`
	Zoom   int               `json:"zoom"`
}

type OpenUserPopup struct{}

func (SetUserMarker) Kind() string       { return KindSetUserMarker }
func (SetSelectedMarker) Kind() string   { return KindSetSelectedMarker }
func (ClearSelectedMarker) Kind() string { return KindClearSelectedMarker }
func (FitBounds) Kind() string           { return KindFitBounds }
func (SetView) Kind() string             { return KindSetView }
func (OpenUserPopup) Kind() string       { return KindOpenUserPopup }

// Envelope is the wire form of a command.
type Envelope struct {
	Kind    string  `json:"kind"`
	Payload Command `json:"payload"`
}

// Wrap returns the wire form of cmd.
func Wrap(cmd Command) Envelope {
	return Envelope{Kind: cmd.Kind(), Payload: cmd}
}

// Controller queues map commands. Sends never block, a full queue drops its oldest command.
type Controller struct {
	mu       sync.Mutex
	commands chan Command
}

// NewController returns a Controller with the given queue size. A non-positive size selects
// DefaultBuffer.
func NewController(size int) *Controller {
	if size <= 0 {
		size = DefaultBuffer
	}
	return &Controller{commands: make(chan Command, size)}
}

// Commands returns the receive side of the queue.
func (c *Controller) Commands() <-chan Command {
	return c.commands
}

// Drain returns and removes all pending commands.
func (c *Controller) Drain() []Command {
	var list []Command
	for {
		select {
		case cmd := <-c.commands:
			list = append(list, cmd)
		default:
			return list
		}
	}
}

// Update draws the user and, if given, the selected shop. With a selected shop the map is fitted
// to both markers, otherwise it is centered on the user.
func (c *Controller) Update(location geobus.Coordinate, selected *poi.Shop) {
	c.send(SetUserMarker{Position: location})
	c.send(ClearSelectedMarker{})
	if selected == nil {
		c.send(SetView{Center: location, Zoom: DefaultZoom})
		return
	}
	c.send(SetSelectedMarker{Shop: *selected})
	southWest, northEast := Bounds(location, selected.Coordinate())
	c.send(FitBounds{SouthWest: southWest, NorthEast: northEast, Padding: DefaultPadding})
}

// Recenter moves the map back to the user and opens the user popup.
func (c *Controller) Recenter(location geobus.Coordinate) {
	c.send(SetView{Center: location, Zoom: DefaultZoom})
	c.send(OpenUserPopup{})
}

// Bounds returns the south-west and north-east corners of the box around a and b.
func Bounds(a, b geobus.Coordinate) (geobus.Coordinate, geobus.Coordinate) {
	return geobus.Coordinate{Lat: min(a.Lat, b.Lat), Lon: min(a.Lon, b.Lon)},
		geobus.Coordinate{Lat: max(a.Lat, b.Lat), Lon: max(a.Lon, b.Lon)}
}

func (c *Controller) send(cmd Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		select {
		case c.commands <- cmd:
			return
		default:
		}
		select {
		case <-c.commands:
		default:
		}
	}
}
