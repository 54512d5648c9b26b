// prox/prox.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package prox finds close glider-to-glider encounters in a trajectory
// set: every grid tick where a pair's horizontal separation is inside a
// threshold, and the per-pair closest approaches those ticks group into.
package prox

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mmp/gaggle/flight"
	"github.com/mmp/gaggle/log"
	"github.com/mmp/gaggle/math"
)

// Event is one grid tick where one pair of aircraft was inside the
// horizontal threshold. Vertical separation is reported for context but
// never gates an event; gliders sharing a thermal a hundred meters apart
// vertically are exactly what we're looking for.
type Event struct {
	Time time.Time `json:"time"`
	Tick int       `json:"tick"`

	// A and B are the pair's aircraft ids, lexically ordered.
	A string `json:"aircraft_a"`
	B string `json:"aircraft_b"`

	Horizontal float64 `json:"horizontal"` // meters
	Vertical   float64 `json:"vertical"`   // meters
}

// Options configure an analysis run.
type Options struct {
	// Threshold is the horizontal separation in meters at or below
	// which a tick becomes an event.
	Threshold float64

	// MinSpeed, when positive, skips ticks where either aircraft is
	// moving slower than this many m/s. Filters out aircraft on the
	// grid and the first moments of aerotow, which would otherwise
	// drown the report in parked-next-to-each-other events.
	MinSpeed float64
}

// Analyze walks the shared tick grid and reports every tick where a pair
// is inside the horizontal threshold. Events come back ordered by time,
// then by pair; consecutive ticks inside the threshold all report, one
// event each, so the caller sees the full shape of an encounter.
func Analyze(set *flight.Set, opts Options, lg *log.Logger) ([]Event, error) {
	if opts.Threshold <= 0 {
		return nil, fmt.Errorf("separation threshold %f must be positive", opts.Threshold)
	}

	trajs := set.Trajectories
	if len(trajs) < 2 {
		return nil, nil
	}
	for _, traj := range trajs[1:] {
		if !traj.Start.Equal(trajs[0].Start) || traj.Tick != trajs[0].Tick || len(traj.Points) != len(trajs[0].Points) {
			return nil, fmt.Errorf("%s: trajectory grid doesn't match %s", traj.ID, trajs[0].ID)
		}
	}

	nTicks := len(trajs[0].Points)

	// Flatten positions (and speeds, if gating) up front so the
	// pairwise loop is cache-friendly.
	pos := make([][][2]float64, len(trajs))
	var speed [][]float64
	if opts.MinSpeed > 0 {
		speed = make([][]float64, len(trajs))
	}
	for j, traj := range trajs {
		pos[j] = make([][2]float64, nTicks)
		for i := range nTicks {
			pos[j][i] = traj.LocalNM(i)
		}
		if speed != nil {
			speed[j] = make([]float64, nTicks)
			for i := range nTicks {
				speed[j][i] = traj.GroundSpeed(i)
			}
		}
	}

	var events []Event
	for i := range nTicks {
		for a := range trajs {
			for b := a + 1; b < len(trajs); b++ {
				if speed != nil && (speed[a][i] < opts.MinSpeed || speed[b][i] < opts.MinSpeed) {
					continue
				}

				h := math.NMToMeters(math.Distance2(pos[a][i], pos[b][i]))
				if h > opts.Threshold {
					continue
				}

				ev := Event{
					Time:       trajs[a].Time(i),
					Tick:       i,
					A:          trajs[a].ID,
					B:          trajs[b].ID,
					Horizontal: h,
					Vertical:   float64(math.Abs(trajs[a].Points[i].Alt - trajs[b].Points[i].Alt)),
				}
				if ev.A > ev.B {
					ev.A, ev.B = ev.B, ev.A
				}
				events = append(events, ev)
			}
		}
	}

	// The tick-major loop already yields time order; the pair order
	// within a tick only needs fixing if the set wasn't id-sorted.
	slices.SortStableFunc(events, func(x, y Event) int {
		if x.Tick != y.Tick {
			return x.Tick - y.Tick
		}
		if c := strings.Compare(x.A, y.A); c != 0 {
			return c
		}
		return strings.Compare(x.B, y.B)
	})

	lg.Debugf("proximity analysis: %d aircraft, %d ticks, %d events inside %.0f m",
		len(trajs), nTicks, len(events), opts.Threshold)

	return events, nil
}

// Encounter is a maximal run of consecutive event ticks for one pair,
// reduced to the bit pilots ask about: when were we closest, and how
// close was it.
type Encounter struct {
	A string `json:"aircraft_a"`
	B string `json:"aircraft_b"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Ticks int       `json:"ticks"`

	// Closest is the event at the pair's minimum horizontal separation
	// within the run; ties go to the earliest tick.
	Closest Event `json:"closest"`
}

// GroupEncounters splits an event list into per-pair encounters: runs of
// consecutive ticks for the same pair, each reduced to its closest
// approach. Encounters come back ordered by start time, then pair.
func GroupEncounters(events []Event) []Encounter {
	runs := make(map[[2]string][]Event)
	for _, ev := range events {
		key := [2]string{ev.A, ev.B}
		runs[key] = append(runs[key], ev)
	}

	var encounters []Encounter
	for key, evs := range runs {
		start := 0
		for i := 1; i <= len(evs); i++ {
			if i < len(evs) && evs[i].Tick == evs[i-1].Tick+1 {
				continue
			}

			run := evs[start:i]
			enc := Encounter{
				A:       key[0],
				B:       key[1],
				Start:   run[0].Time,
				End:     run[len(run)-1].Time,
				Ticks:   len(run),
				Closest: run[0],
			}
			for _, ev := range run[1:] {
				if ev.Horizontal < enc.Closest.Horizontal {
					enc.Closest = ev
				}
			}
			encounters = append(encounters, enc)
			start = i
		}
	}

	slices.SortFunc(encounters, func(x, y Encounter) int {
		if !x.Start.Equal(y.Start) {
			if x.Start.Before(y.Start) {
				return -1
			}
			return 1
		}
		if c := strings.Compare(x.A, y.A); c != 0 {
			return c
		}
		return strings.Compare(x.B, y.B)
	})

	return encounters
}
