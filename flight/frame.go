// flight/frame.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package flight

import (
	"fmt"
	"time"

	"github.com/mmp/gaggle/math"
)

// Positions and attitude are quantized onto fixed integer grids when a
// trajectory set is flattened into frames. The archive stores these
// integers and the replay protocol formats from them, so a set replayed
// live and one saved and reloaded emit byte-identical protocol traffic.
// 1e-7 degree is about a centimeter of latitude; a centidegree of bank
// is far below what a viewer can show.
const (
	PositionScale = 1e7 // degrees -> int32
	AltitudeScale = 10  // meters -> decimeter int32
	AttitudeScale = 100 // degrees -> centidegree int16
)

// FrameAircraft is one aircraft's quantized state at one tick.
type FrameAircraft struct {
	ID      string
	Lat     int32 // 1e-7 degrees
	Lon     int32 // 1e-7 degrees
	Alt     int32 // decimeters
	Heading int16 // centidegrees in (-180, 180]
	Pitch   int16 // centidegrees
	Bank    int16 // centidegrees
}

// Frame is everything a replay session emits for one tick.
type Frame struct {
	Index    int
	Time     time.Time
	Aircraft []FrameAircraft
}

// LatDeg returns the latitude in degrees.
func (fa FrameAircraft) LatDeg() float64 { return float64(fa.Lat) / PositionScale }

// LonDeg returns the longitude in degrees.
func (fa FrameAircraft) LonDeg() float64 { return float64(fa.Lon) / PositionScale }

// Position returns the aircraft position as a point.
func (fa FrameAircraft) Position() math.Point2LL {
	return math.Point2LL{fa.LonDeg(), fa.LatDeg()}
}

// AltFeet returns the altitude in feet, the unit the viewer protocol
// speaks.
func (fa FrameAircraft) AltFeet() float64 {
	return math.MetersToFeet(float64(fa.Alt) / AltitudeScale)
}

// HeadingDeg returns the heading in degrees in [0, 360).
func (fa FrameAircraft) HeadingDeg() float64 {
	return math.NormalizeHeading(float64(fa.Heading) / AttitudeScale)
}

// PitchDeg returns the pitch in degrees.
func (fa FrameAircraft) PitchDeg() float64 { return float64(fa.Pitch) / AttitudeScale }

// BankDeg returns the bank in degrees.
func (fa FrameAircraft) BankDeg() float64 { return float64(fa.Bank) / AttitudeScale }

// frameAircraft quantizes grid point i.
func (t *Trajectory) frameAircraft(i int) FrameAircraft {
	p := t.Position(i)
	pt := t.Points[i]

	// Headings live in [0, 360) in the trajectory but are stored as
	// signed offsets so they fit the int16 grid.
	h := math.NormalizeHeading(float64(pt.Heading))
	if h > 180 {
		h -= 360
	}

	return FrameAircraft{
		ID:      t.ID,
		Lat:     int32(math.Round(p.Latitude() * PositionScale)),
		Lon:     int32(math.Round(p.Longitude() * PositionScale)),
		Alt:     int32(math.Round(float64(pt.Alt) * AltitudeScale)),
		Heading: int16(math.Round(h * AttitudeScale)),
		Pitch:   int16(math.Round(float64(pt.Pitch) * AttitudeScale)),
		Bank:    int16(math.Round(float64(pt.Bank) * AttitudeScale)),
	}
}

// Frames flattens a trajectory set into its per-tick frame sequence.
// Every trajectory in a built set covers the same grid; mismatched grids
// mean the set was assembled by hand and are rejected.
func Frames(set *Set) ([]Frame, error) {
	if len(set.Trajectories) == 0 {
		return nil, nil
	}

	t0 := set.Trajectories[0]
	for _, t := range set.Trajectories[1:] {
		if !t.Start.Equal(t0.Start) || t.Tick != t0.Tick || len(t.Points) != len(t0.Points) {
			return nil, fmt.Errorf("%s: trajectory grid doesn't match %s", t.ID, t0.ID)
		}
	}

	frames := make([]Frame, len(t0.Points))
	for i := range frames {
		fr := Frame{
			Index:    i,
			Time:     t0.Time(i),
			Aircraft: make([]FrameAircraft, len(set.Trajectories)),
		}
		for j, t := range set.Trajectories {
			fr.Aircraft[j] = t.frameAircraft(i)
		}
		frames[i] = fr
	}
	return frames, nil
}
