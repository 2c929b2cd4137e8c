// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package gpspoll asks a local gpsd for a single TPV report.
package gpspoll

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"time"
)

const (
	fallbackAccuracy3DFix = 10  // typical consumer GPS in open sky
	fallbackAccuracy2DFix = 25
	fallbackAccuracyNoFix = 1e6 // effectively unusable
	watchTimeout          = time.Second * 2
	watchCommand          = `?WATCH={"enable":true,"json":true}`
)

var ErrNoReport = errors.New("no TPV report received from gpsd")

// Client polls a gpsd daemon over its JSON socket protocol.
type Client struct {
	Addr string
}

// Fix is a single position report.
type Fix struct {
	Lat  float64
	Lon  float64
	Alt  float64
	Acc  float64
	Mode int
}

// tpvReport is the subset of gpsd's TPV class used here.
type tpvReport struct {
	Class string  `json:"class"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Alt   float64 `json:"alt"`
	Mode  int     `json:"mode"`
	Epx   float64 `json:"epx"`
	Epy   float64 `json:"epy"`
	Eph   float64 `json:"eph"`
}

// New returns a Client for the gpsd at host:port.
func New(host, port string) *Client {
	return &Client{Addr: net.JoinHostPort(host, port)}
}

// Poll enables watching on a fresh connection and returns the first TPV report. The connection
// is closed before returning. Without a deadline on ctx, the read is bounded by a short timeout.
func (c *Client) Poll(ctx context.Context) (Fix, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return Fix{}, fmt.Errorf("failed to connect to gpsd: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(watchTimeout)
	}
	_ = conn.SetDeadline(deadline)

	if _, err = fmt.Fprintln(conn, watchCommand); err != nil {
		return Fix{}, fmt.Errorf("failed to send watch command to gpsd: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if err = ctx.Err(); err != nil {
			return Fix{}, err
		}

		var report tpvReport
		if err = json.Unmarshal(scanner.Bytes(), &report); err != nil || report.Class != "TPV" {
			continue
		}
		return Fix{
			Lat:  report.Lat,
			Lon:  report.Lon,
			Alt:  report.Alt,
			Acc:  report.horizontalAccuracy(),
			Mode: report.Mode,
		}, nil
	}
	if err = scanner.Err(); err != nil {
		return Fix{}, fmt.Errorf("failed to read gpsd response: %w", err)
	}
	return Fix{}, ErrNoReport
}

// Has2DFix reports whether the fix has at least a 2D fix.
func (f Fix) Has2DFix() bool {
	return f.Mode >= 2
}

func (r tpvReport) horizontalAccuracy() float64 {
	switch {
	case r.Eph > 0:
		return r.Eph
	case r.Epx > 0 && r.Epy > 0:
		return math.Hypot(r.Epx, r.Epy)
	}
	switch r.Mode {
	case 3:
		return fallbackAccuracy3DFix
	case 2:
		return fallbackAccuracy2DFix
	default:
		return fallbackAccuracyNoFix
	}
}
