// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package permission decides whether coffeewhere may use the device location.
package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/wneessen/coffeewhere/internal/logger"
)

// State is the tri-state outcome of a permission check.
type State int

const (
	StateUnknown State = iota
	StateGranted
	StateDenied
)

const (
	CapabilityDesktop = "desktop"
	CapabilityConsent = "consent"
	CapabilityGranted = "granted"
)

var (
	ErrCapabilityRequired = errors.New("permission capability is required")
	ErrLoggerRequired     = errors.New("logger is required")
	ErrUnknownCapability  = errors.New("unknown permission capability")
)

func (s State) String() string {
	switch s {
	case StateGranted:
		return "granted"
	case StateDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so states are rendered by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Capability is the platform side of the permission model.
type Capability interface {
	Name() string
	Check(ctx context.Context) (bool, error)
	Request(ctx context.Context) (bool, error)
}

// Resetter is implemented by capabilities that remember an earlier answer. Reset forgets it so
// the next Request asks again.
type Resetter interface {
	Reset() error
}

// Gate holds the permission state for a session. It is created once and passed to whoever needs
// it; there is no teardown.
type Gate struct {
	mu         sync.RWMutex
	capability Capability
	logger     *logger.Logger
	state      State
}

// New returns a Gate in StateUnknown.
func New(capability Capability, log *logger.Logger) (*Gate, error) {
	if capability == nil {
		return nil, ErrCapabilityRequired
	}
	if log == nil {
		return nil, ErrLoggerRequired
	}
	return &Gate{capability: capability, logger: log}, nil
}

// NewCapability builds the capability configured by kind.
func NewCapability(kind string, consent *ConsentCapability) (Capability, error) {
	kind = strings.ToLower(kind)
	if consent == nil && kind != CapabilityGranted {
		return nil, ErrCapabilityRequired
	}
	switch kind {
	case CapabilityDesktop:
		return NewDesktopCapability(consent), nil
	case CapabilityConsent:
		return consent, nil
	case CapabilityGranted:
		return GrantedCapability{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, kind)
	}
}

// Init runs the initial check.
func (g *Gate) Init(ctx context.Context) State {
	return g.Check(ctx)
}

// State returns the last known state without asking the capability.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Check asks the capability whether permission is currently granted.
func (g *Gate) Check(ctx context.Context) State {
	granted, err := g.capability.Check(ctx)
	return g.settle("check", granted, err)
}

// Request asks the capability for permission. A capability that stored an earlier answer
// returns it without asking again.
func (g *Gate) Request(ctx context.Context) State {
	granted, err := g.capability.Request(ctx)
	return g.settle("request", granted, err)
}

// Revisit forgets a stored answer and requests permission again.
func (g *Gate) Revisit(ctx context.Context) State {
	if resetter, ok := g.capability.(Resetter); ok {
		if err := resetter.Reset(); err != nil {
			g.logger.Error("failed to reset stored location permission", logger.Err(err))
		}
	}
	return g.Request(ctx)
}

func (g *Gate) settle(op string, granted bool, err error) State {
	state := StateDenied
	if err != nil {
		g.logger.Warn("location permission "+op+" failed", slog.String("capability", g.capability.Name()),
			logger.Err(err))
	} else if granted {
		state = StateGranted
	}

	g.mu.Lock()
	g.state = state
	g.mu.Unlock()

	g.logger.Debug("location permission "+op, slog.String("capability", g.capability.Name()),
		slog.String("state", state.String()))
	return state
}

// GrantedCapability always grants access. Meant for headless installations where the operator
// configured the position sources.
type GrantedCapability struct{}

func (GrantedCapability) Name() string                          { return CapabilityGranted }
func (GrantedCapability) Check(context.Context) (bool, error)   { return true, nil }
func (GrantedCapability) Request(context.Context) (bool, error) { return true, nil }
