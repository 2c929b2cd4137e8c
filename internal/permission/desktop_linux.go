// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

package permission

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/godbus/dbus/v5"
)

const (
	dbusListNames            = "org.freedesktop.DBus.ListNames"
	dbusListActivatableNames = "org.freedesktop.DBus.ListActivatableNames"
	geoClueBusName           = "org.freedesktop.GeoClue2"
)

var ErrNoLocationService = errors.New("no location service available on the system bus")

// DesktopCapability requires a GeoClue location service on the system bus and then defers to
// the user's consent.
type DesktopCapability struct {
	consent   *ConsentCapability
	serviceFn func(ctx context.Context) (bool, error)
}

func NewDesktopCapability(consent *ConsentCapability) *DesktopCapability {
	return &DesktopCapability{
		consent:   consent,
		serviceFn: locationServicePresent,
	}
}

func (d *DesktopCapability) Name() string {
	return CapabilityDesktop
}

func (d *DesktopCapability) Check(ctx context.Context) (bool, error) {
	if err := d.requireService(ctx); err != nil {
		return false, err
	}
	return d.consent.Check(ctx)
}

func (d *DesktopCapability) Request(ctx context.Context) (bool, error) {
	if err := d.requireService(ctx); err != nil {
		return false, err
	}
	return d.consent.Request(ctx)
}

func (d *DesktopCapability) Reset() error {
	return d.consent.Reset()
}

func (d *DesktopCapability) requireService(ctx context.Context) error {
	present, err := d.serviceFn(ctx)
	if err != nil {
		return err
	}
	if !present {
		return ErrNoLocationService
	}
	return nil
}

// locationServicePresent reports whether GeoClue is running or can be activated on the system bus.
func locationServicePresent(ctx context.Context) (present bool, err error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close system bus: %w", closeErr))
		}
	}()

	for _, method := range []string{dbusListNames, dbusListActivatableNames} {
		var names []string
		if err = conn.BusObject().CallWithContext(ctx, method, 0).Store(&names); err != nil {
			return false, fmt.Errorf("failed to call %s: %w", method, err)
		}
		if slices.Contains(names, geoClueBusName) {
			return true, nil
		}
	}
	return false, nil
}
