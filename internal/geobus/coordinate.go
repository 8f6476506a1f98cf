// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// SignificantChangeDistance is the movement in meters that counts as a significant location change.
const SignificantChangeDistance = 500.0

// Coordinate represents a geographic coordinate.
type Coordinate struct {
	Lat float64
	Lon float64
	Acc float64
}

// Point returns the coordinate as orb.Point. Note that orb uses lon/lat ordering.
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// DistanceTo returns the great-circle distance in meters between two coordinates.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	return geo.DistanceHaversine(c.Point(), other.Point())
}

// MovedBeyond reports whether the distance to other is at least the given number of meters.
func (c Coordinate) MovedBeyond(other Coordinate, meters float64) bool {
	return c.DistanceTo(other) >= meters
}

// Valid checks if the coordinate is valid according to the EPSG logic
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}
