// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build !linux

package permission

import (
	"context"
)

// DesktopCapability has no location permission model outside of Linux and always denies.
type DesktopCapability struct{}

func NewDesktopCapability(*ConsentCapability) *DesktopCapability {
	return &DesktopCapability{}
}

func (d *DesktopCapability) Name() string                          { return CapabilityDesktop }
func (d *DesktopCapability) Check(context.Context) (bool, error)   { return false, nil }
func (d *DesktopCapability) Request(context.Context) (bool, error) { return false, nil }
