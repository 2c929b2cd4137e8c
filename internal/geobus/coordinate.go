// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"math"
	"strconv"
)

const (
	EarthRadius       = 6371000.0 // meters
	DistanceThreshold = 250.0     // meters
	AccuracyThreshold = 50.0
)

// Coordinate represents a geographic coordinate. Acc is the horizontal accuracy in meters, zero
// if unknown.
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
	Acc float64 `json:"accuracy,omitempty"`
}

// DistanceTo returns the great-circle distance to other in meters (haversine).
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	dLat := (other.Lat - c.Lat) * math.Pi / 180
	dLon := (other.Lon - c.Lon) * math.Pi / 180
	lat1 := c.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}

// PosHasSignificantChange reports whether other differs enough from c to be worth publishing.
// A clearly better accuracy always counts as a change.
func (c Coordinate) PosHasSignificantChange(other Coordinate) bool {
	if c.Acc > 0 && other.Acc > 0 && c.Acc < other.Acc && math.Abs(c.Acc-other.Acc) > AccuracyThreshold {
		return true
	}
	return c.DistanceTo(other) > DistanceThreshold
}

// Valid checks if the coordinate is valid according to the EPSG logic
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Round returns the coordinate rounded to precision decimal places, half away from zero.
func (c Coordinate) Round(precision int) Coordinate {
	return Coordinate{
		Lat: Round(c.Lat, precision),
		Lon: Round(c.Lon, precision),
		Acc: c.Acc,
	}
}

// Round rounds x to precision decimal places, half away from zero.
func Round(x float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(x*p) / p
}

// Truncate cuts x down to precision decimal places.
func Truncate(x float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Trunc(x*p) / p
}

// FormatDegrees formats a degree value in its shortest decimal representation.
func FormatDegrees(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
