// math/heading.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import gomath "math"

// NormalizeHeading normalizes an arbitrary heading to [0, 360).
func NormalizeHeading(h float64) float64 {
	h = gomath.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// HeadingDifference returns the minimum angular distance between two
// headings, always in [0, 180].
func HeadingDifference(a float64, b float64) float64 {
	var d float64
	if a > b {
		d = a - b
	} else {
		d = b - a
	}
	d = NormalizeHeading(d)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// HeadingSignedTurn returns the signed angle to turn from heading a to
// heading b, negative for a left turn.
func HeadingSignedTurn(a, b float64) float64 {
	d := NormalizeHeading(b - a)
	if d > 180 {
		d -= 360
	}
	return d
}

func OppositeHeading(h float64) float64 {
	return NormalizeHeading(h + 180)
}

// HeadingVector returns the unit vector pointing in the direction of the
// given compass heading, where 0 is north (+y) and 90 is east (+x).
func HeadingVector(h float64) [2]float64 {
	return SinCos(Radians(h))
}

// VectorHeading returns the compass heading a vector points toward.
func VectorHeading(v [2]float64) float64 {
	return NormalizeHeading(Degrees(gomath.Atan2(v[0], v[1])))
}

// Heading2LL returns the true heading from one point to another, with
// distances reckoned in the local nautical-mile frame.
func Heading2LL(from Point2LL, to Point2LL, nmPerLongitude float64) float64 {
	v := Sub2(LL2NM(to, nmPerLongitude), LL2NM(from, nmPerLongitude))
	return VectorHeading(v)
}

var compassDirections = [8]string{"North", "Northeast", "East", "Southeast",
	"South", "Southwest", "West", "Northwest"}
var shortCompassDirections = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Compass returns the compass direction (e.g., "Northwest") that is
// closest to the given heading.
func Compass(heading float64) string {
	idx := int(gomath.Mod(heading+22.5, 360) / 45)
	return compassDirections[idx]
}

// ShortCompass gives the abbreviated form, "NW" and friends.
func ShortCompass(heading float64) string {
	idx := int(gomath.Mod(heading+22.5, 360) / 45)
	return shortCompassDirections[idx]
}
