// wind/wind.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wind

import (
	"fmt"
	"strings"
	"time"

	"github.com/mmp/gaggle/math"
	"github.com/mmp/gaggle/util"
)

// Vector is a prevailing wind in the usual meteorological convention:
// the direction it blows from, degrees true, and its speed in m/s.
// Treated as constant over an analysis window; thermalling flights drift
// with the air mass, so removing this displacement from the GPS ground
// tracks is what makes glider-to-glider geometry meaningful.
type Vector struct {
	Speed         float32 `json:"speed"`          // m/s
	DirectionFrom float32 `json:"direction_from"` // degrees true
}

// FromUV converts eastward/northward wind components in m/s to a Vector.
func FromUV(u, v float64) Vector {
	dir := 270 - math.Degrees(math.Atan2(v, u))
	dir = math.NormalizeHeading(dir)

	return Vector{
		Speed:         float32(math.Length2([2]float64{u, v})),
		DirectionFrom: float32(dir),
	}
}

// FromKnots returns the Vector for a wind given the way pilots give it:
// direction first, speed in knots.
func FromKnots(directionFrom, speedKts float64) Vector {
	return Vector{
		Speed:         float32(math.KnotsToMPS(speedKts)),
		DirectionFrom: float32(math.NormalizeHeading(directionFrom)),
	}
}

// ParseVector parses a wind flag of the form "270@8": direction degrees
// true, then speed in knots.
func ParseVector(s string) (Vector, error) {
	dirStr, spdStr, ok := strings.Cut(s, "@")
	if !ok {
		return Vector{}, fmt.Errorf("%q: expected direction@speed, e.g. 270@8", s)
	}

	dir, err := util.Atof(dirStr)
	if err != nil || dir < 0 || dir > 360 {
		return Vector{}, fmt.Errorf("%q: bad wind direction", s)
	}
	spd, err := util.Atof(spdStr)
	if err != nil || spd < 0 {
		return Vector{}, fmt.Errorf("%q: bad wind speed", s)
	}

	return FromKnots(dir, spd), nil
}

// UV returns the wind's eastward and northward components in m/s.
func (w Vector) UV() (float64, float64) {
	d := math.Radians(float64(w.DirectionFrom))
	s := float64(w.Speed)
	return -s * math.Sin(d), -s * math.Cos(d)
}

func (w Vector) IsZero() bool {
	return w.Speed == 0
}

// Negated returns the wind blowing equally hard from the opposite
// direction; applying it undoes the original wind's displacement.
func (w Vector) Negated() Vector {
	return Vector{
		Speed:         w.Speed,
		DirectionFrom: float32(math.OppositeHeading(float64(w.DirectionFrom))),
	}
}

// DisplacementNM returns how far the air mass has moved after the given
// elapsed time, as an offset in local nautical-mile coordinates. The
// displacement points the direction the wind blows toward.
func (w Vector) DisplacementNM(elapsed time.Duration) [2]float64 {
	if w.Speed == 0 {
		return [2]float64{}
	}
	to := math.OppositeHeading(float64(w.DirectionFrom))
	d := math.MetersToNM(float64(w.Speed) * elapsed.Seconds())
	return math.Scale2(math.HeadingVector(to), d)
}

func (w Vector) String() string {
	if w.IsZero() {
		return "calm"
	}
	return fmt.Sprintf("%.1f m/s from %03.0f (%s)",
		w.Speed, w.DirectionFrom, math.ShortCompass(float64(w.DirectionFrom)))
}
