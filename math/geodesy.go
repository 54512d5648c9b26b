// math/geodesy.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	"fmt"
	gomath "math"
	"regexp"
	"strconv"
)

// Point2LL represents a 2D point on the surface of the earth in
// latitude-longitude. It is stored with longitude in the first index and
// latitude in the second so that the usual 2D vector functions can be
// applied to it: x corresponds to east and y to north.
type Point2LL [2]float64

func (p Point2LL) Longitude() float64 {
	return p[0]
}

func (p Point2LL) Latitude() float64 {
	return p[1]
}

func (p Point2LL) IsZero() bool {
	return p[0] == 0 && p[1] == 0
}

func (p Point2LL) String() string {
	return fmt.Sprintf("%.6f, %.6f", p[1], p[0])
}

// Store Point2LLs as "lat, long" strings in JSON for readability in
// config files.
func (p Point2LL) MarshalJSON() ([]byte, error) {
	return []byte("\"" + p.String() + "\""), nil
}

func (p *Point2LL) UnmarshalJSON(b []byte) error {
	if len(b) >= 2 && b[0] == '"' {
		pt, err := ParseLatLong(b[1 : len(b)-1])
		if err == nil {
			*p = pt
		}
		return err
	}
	// Backwards compatibility for arrays of two floats.
	var pt [2]float64
	if err := unmarshalArray(b, &pt); err != nil {
		return err
	}
	*p = pt
	return nil
}

func unmarshalArray(b []byte, pt *[2]float64) error {
	n, err := fmt.Sscanf(string(b), "[%f,%f]", &pt[0], &pt[1])
	if err != nil || n != 2 {
		return fmt.Errorf("%s: malformed point", string(b))
	}
	return nil
}

var reLatLong = regexp.MustCompile(`^([-+]?[0-9]+\.[0-9]+), *([-+]?[0-9]+\.[0-9]+)$`)
var reLatLongDMS = regexp.MustCompile(`^([NS])([0-9]+)\.([0-9]+)\.([0-9]+)\.([0-9]+), *([EW])([0-9]+)\.([0-9]+)\.([0-9]+)\.([0-9]+)$`)

// ParseLatLong parses a latitude-longitude specifier, given either as
// "latitude, longitude" in decimal degrees or in degrees-minutes-seconds
// form like "N40.37.58.400, W073.46.17.000".
func ParseLatLong(llstr []byte) (Point2LL, error) {
	var p Point2LL

	if m := reLatLong.FindSubmatch(llstr); m != nil {
		lat, err := strconv.ParseFloat(string(m[1]), 64)
		if err != nil {
			return p, err
		}
		lon, err := strconv.ParseFloat(string(m[2]), 64)
		if err != nil {
			return p, err
		}
		p[0], p[1] = lon, lat
	} else if m := reLatLongDMS.FindSubmatch(llstr); m != nil {
		dms := func(deg, min, sec, frac []byte) (float64, error) {
			d, err := strconv.Atoi(string(deg))
			if err != nil {
				return 0, err
			}
			m, err := strconv.Atoi(string(min))
			if err != nil {
				return 0, err
			}
			s, err := strconv.ParseFloat(string(sec)+"."+string(frac), 64)
			if err != nil {
				return 0, err
			}
			return float64(d) + float64(m)/60 + s/3600, nil
		}

		lat, err := dms(m[2], m[3], m[4], m[5])
		if err != nil {
			return p, err
		}
		if m[1][0] == 'S' {
			lat = -lat
		}
		lon, err := dms(m[7], m[8], m[9], m[10])
		if err != nil {
			return p, err
		}
		if m[6][0] == 'W' {
			lon = -lon
		}
		p[0], p[1] = lon, lat
	} else {
		return p, fmt.Errorf("%s: invalid latitude-longitude string", string(llstr))
	}

	if p[1] < -90 || p[1] > 90 {
		return p, fmt.Errorf("%s: latitude out of range", string(llstr))
	}
	if p[0] < -180 || p[0] > 180 {
		return p, fmt.Errorf("%s: longitude out of range", string(llstr))
	}
	return p, nil
}

///////////////////////////////////////////////////////////////////////////
// distances and local planar coordinates

const NMPerLatitude = 60

// Unit conversions. Aviation distances are naturally in nautical miles
// and the IGC format records altitudes in meters, so both come up.
const (
	MetersPerNM  = 1852
	FeetPerMeter = 3.28084
)

func NMToMeters(nm float64) float64 { return nm * MetersPerNM }
func MetersToNM(m float64) float64 { return m / MetersPerNM }
func MetersToFeet(m float64) float64 { return m * FeetPerMeter }
func FeetToMeters(ft float64) float64 { return ft / FeetPerMeter }
func KnotsToMPS(kts float64) float64 { return kts * MetersPerNM / 3600 }
func MPSToKnots(mps float64) float64 { return mps * 3600 / MetersPerNM }

// NMPerLongitudeAt returns the number of nautical miles covered by one
// degree of longitude at the latitude of the given point.
func NMPerLongitudeAt(p Point2LL) float64 {
	return NMPerLatitude * gomath.Cos(Radians(p[1]))
}

// NMDistance2LL returns the distance in nautical miles between two
// provided lat-long coordinates.
func NMDistance2LL(a Point2LL, b Point2LL) float64 {
	// https://www.movable-type.co.uk/scripts/latlong.html
	const R = 6371000 // metres
	lat1, lon1 := Radians(a[1]), Radians(a[0])
	lat2, lon2 := Radians(b[1]), Radians(b[0])
	dlat, dlon := lat2-lat1, lon2-lon1

	x := Sqr(gomath.Sin(dlat/2)) + gomath.Cos(lat1)*gomath.Cos(lat2)*Sqr(gomath.Sin(dlon/2))
	c := 2 * gomath.Atan2(gomath.Sqrt(x), gomath.Sqrt(1-x))
	return MetersToNM(R * c)
}

// NMDistance2LLFast returns a cheap planar approximation of the distance
// in nautical miles between two points, given the number of nautical
// miles per degree of longitude in the area of interest. Plenty accurate
// over the tens of miles a contest task covers.
func NMDistance2LLFast(a Point2LL, b Point2LL, nmPerLongitude float64) float64 {
	anm := LL2NM(a, nmPerLongitude)
	bnm := LL2NM(b, nmPerLongitude)
	return Distance2(anm, bnm)
}

// LL2NM converts a point expressed in latitude-longitude coordinates to
// nautical mile coordinates; this is useful for example for reasoning
// about distances, since both axes then have the same measure.
func LL2NM(p Point2LL, nmPerLongitude float64) [2]float64 {
	return [2]float64{p[0] * nmPerLongitude, p[1] * NMPerLatitude}
}

// NM2LL converts a point expressed in nautical mile coordinates to
// lat-long.
func NM2LL(p [2]float64, nmPerLongitude float64) Point2LL {
	return Point2LL{p[0] / nmPerLongitude, p[1] / NMPerLatitude}
}
