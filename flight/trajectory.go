// flight/trajectory.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package flight

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mmp/gaggle/igc"
	"github.com/mmp/gaggle/log"
	"github.com/mmp/gaggle/math"
	"github.com/mmp/gaggle/util"
	"github.com/mmp/gaggle/wind"
	"golang.org/x/sync/errgroup"
)

// ErrWindow indicates a track with too little data inside the requested
// time window for resampling; the aircraft is excluded and the rest of
// the set carries on.
var ErrWindow = errors.New("insufficient data in time window")

// FrameType selects the coordinate frame trajectory points are expressed
// in. Pairwise separations come out the same either way; the local frame
// mostly exists for humans reading exported positions as offsets from a
// task landmark.
type FrameType int

const (
	// Longitude/latitude degrees plus altitude in meters.
	FrameGeodetic FrameType = iota
	// East/north nautical-mile offsets from the reference point plus
	// altitude in meters.
	FrameLocalNM
)

func (f FrameType) String() string {
	return [...]string{"geodetic", "local-nm"}[f]
}

// BuildOptions are the parameters shared by every trajectory in a built
// set.
type BuildOptions struct {
	// Window is the analysis interval; samples outside it are
	// discarded. Both endpoints are inclusive.
	Window util.TimeInterval
	// Tick is the uniform grid spacing trajectories are resampled onto.
	Tick time.Duration
	// Wind is removed from the ground tracks so aircraft are compared
	// in the frame of the drifting air mass.
	Wind wind.Vector
	// Frame selects the output coordinate frame.
	Frame FrameType
	// Ref anchors the local frame, the replay distance filter, and the
	// flat-earth scale. Zero means "use the centroid of the input
	// tracks".
	Ref math.Point2LL
}

// Point is one trajectory grid point.
type Point struct {
	// P is [lon, lat] degrees under FrameGeodetic and [east, north]
	// nautical miles from the reference point under FrameLocalNM.
	P   [2]float64
	Alt float32 // meters

	// Derived attitude for the viewer.
	Heading float32 // degrees, [0, 360)
	Pitch   float32 // degrees, positive up
	Bank    float32 // degrees, positive right wing down
}

// Trajectory is one aircraft resampled onto the tick grid covering the
// analysis window, wind-drift corrected, with derived attitude. It is
// rebuilt, never mutated, when the window, wind, or source track change.
type Trajectory struct {
	ID         string
	Pilot      string
	GliderType string

	Frame          FrameType
	Ref            math.Point2LL
	NMPerLongitude float64
	Start          time.Time
	Tick           time.Duration

	Points []Point
}

// Set is a trajectory set together with the parameters it was built
// under; the unit that gets analyzed, exported, and replayed.
type Set struct {
	Window         util.TimeInterval
	Tick           time.Duration
	Wind           wind.Vector
	Frame          FrameType
	Ref            math.Point2LL
	NMPerLongitude float64

	Trajectories []*Trajectory
}

// Time returns the absolute time of grid point i.
func (t *Trajectory) Time(i int) time.Time {
	return t.Start.Add(time.Duration(i) * t.Tick)
}

// Position returns grid point i in geodetic coordinates regardless of
// the trajectory's frame.
func (t *Trajectory) Position(i int) math.Point2LL {
	if t.Frame == FrameGeodetic {
		return math.Point2LL(t.Points[i].P)
	}
	return math.NM2LL(math.Add2(t.Points[i].P, math.LL2NM(t.Ref, t.NMPerLongitude)), t.NMPerLongitude)
}

// LocalNM returns grid point i as east/north nautical-mile offsets from
// the reference point regardless of the trajectory's frame.
func (t *Trajectory) LocalNM(i int) [2]float64 {
	if t.Frame == FrameLocalNM {
		return t.Points[i].P
	}
	return math.Sub2(math.LL2NM(math.Point2LL(t.Points[i].P), t.NMPerLongitude),
		math.LL2NM(t.Ref, t.NMPerLongitude))
}

// GroundSpeed returns the groundspeed in m/s at grid point i, from the
// segment leaving i (or arriving at it, for the last point).
func (t *Trajectory) GroundSpeed(i int) float64 {
	if len(t.Points) < 2 {
		return 0
	}
	if i == len(t.Points)-1 {
		i--
	}
	d := math.Distance2(t.LocalNM(i), t.LocalNM(i+1))
	return math.NMToMeters(d) / t.Tick.Seconds()
}

// Build resamples each track onto the tick grid covering opts.Window,
// removes the wind drift, and derives per-tick attitude. Tracks that
// can't be built are excluded and reported in the second return value by
// aircraft id; they never abort the run. Trajectories come back sorted
// by aircraft id no matter what order the per-track work finishes in.
func Build(tracks []*igc.Track, opts BuildOptions, lg *log.Logger) (*Set, map[string]error, error) {
	if !opts.Window.IsValid() {
		return nil, nil, fmt.Errorf("window start %v is not before stop %v",
			opts.Window.Start(), opts.Window.End())
	}
	if opts.Tick <= 0 {
		return nil, nil, fmt.Errorf("tick interval %v must be positive", opts.Tick)
	}
	if len(tracks) == 0 {
		return nil, nil, fmt.Errorf("no tracks to build")
	}

	excluded := make(map[string]error)

	// Duplicate ids would collide at analysis and replay; first one in
	// wins.
	seen := make(map[string]bool)
	var use []*igc.Track
	for _, trk := range tracks {
		if id := trk.ID(); seen[id] {
			excluded[id] = fmt.Errorf("duplicate aircraft id %q", id)
			lg.Warnf("%s: duplicate aircraft id; keeping the first log", id)
		} else {
			seen[id] = true
			use = append(use, trk)
		}
	}

	ref := opts.Ref
	if ref.IsZero() {
		ref = centroid(use)
	}
	nmPerLongitude := math.NMPerLongitudeAt(ref)

	set := &Set{
		Window:         opts.Window,
		Tick:           opts.Tick,
		Wind:           opts.Wind,
		Frame:          opts.Frame,
		Ref:            ref,
		NMPerLongitude: nmPerLongitude,
	}

	// Per-aircraft work shares nothing mutable, so fan out; the sort
	// afterwards keeps the output deterministic.
	var mu sync.Mutex
	eg := errgroup.Group{}
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for _, trk := range use {
		eg.Go(func() error {
			traj, err := buildOne(trk, opts, ref, nmPerLongitude)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				excluded[trk.ID()] = err
				lg.Warnf("%s: excluded from trajectory set: %v", trk.ID(), err)
			} else {
				set.Trajectories = append(set.Trajectories, traj)
			}
			return nil
		})
	}
	_ = eg.Wait()

	slices.SortFunc(set.Trajectories, func(a, b *Trajectory) int { return strings.Compare(a.ID, b.ID) })

	lg.Infof("built %d trajectories (%d excluded): window %v to %v, tick %v, wind %s",
		len(set.Trajectories), len(excluded), opts.Window.Start(), opts.Window.End(), opts.Tick, opts.Wind)

	return set, excluded, nil
}

// centroid returns the mean position over every sample of every track;
// the default reference point when none is configured.
func centroid(tracks []*igc.Track) math.Point2LL {
	var sum [2]float64
	n := 0
	for _, trk := range tracks {
		for _, s := range trk.Samples {
			sum = math.Add2(sum, [2]float64(s.Position()))
			n++
		}
	}
	if n == 0 {
		return math.Point2LL{}
	}
	return math.Point2LL(math.Scale2(sum, 1/float64(n)))
}

func buildOne(trk *igc.Track, opts BuildOptions, ref math.Point2LL, nmPerLongitude float64) (*Trajectory, error) {
	// Clip to the window, keeping the altitude series aligned with the
	// samples. Altitude calibration runs over the full track so the
	// calibration bands don't collapse for short windows.
	alts := trk.Altitudes()
	lo := 0
	for lo < len(trk.Samples) && trk.Samples[lo].Time.Before(opts.Window.Start()) {
		lo++
	}
	hi := lo
	for hi < len(trk.Samples) && !trk.Samples[hi].Time.After(opts.Window.End()) {
		hi++
	}
	samples, alts := trk.Samples[lo:hi], alts[lo:hi]
	if len(samples) < 2 {
		return nil, fmt.Errorf("%d samples between %v and %v: %w",
			len(samples), opts.Window.Start(), opts.Window.End(), ErrWindow)
	}

	nTicks := int(opts.Window.Duration()/opts.Tick) + 1
	traj := &Trajectory{
		ID:             trk.ID(),
		Pilot:          trk.Pilot,
		GliderType:     trk.GliderType,
		Frame:          opts.Frame,
		Ref:            ref,
		NMPerLongitude: nmPerLongitude,
		Start:          opts.Window.Start(),
		Tick:           opts.Tick,
		Points:         make([]Point, nTicks),
	}

	// Resample by linear interpolation between the bracketing fixes;
	// grid points before the first fix or after the last hold the edge
	// fix. Then displace everything by the air-mass travel accumulated
	// since the window start; a negated wind exactly undoes it.
	// Positions are carried in flat nautical-mile coordinates from here
	// on; the attitude derivation below wants them anyway.
	refNM := math.LL2NM(ref, nmPerLongitude)
	pos := make([][2]float64, nTicks)
	alt := make([]float64, nTicks)
	si := 0
	for i := range nTicks {
		ti := traj.Time(i)
		for si+1 < len(samples) && !samples[si+1].Time.After(ti) {
			si++
		}

		var p math.Point2LL
		switch {
		case si == 0 && samples[0].Time.After(ti):
			p, alt[i] = samples[0].Position(), float64(alts[0])
		case si == len(samples)-1:
			p, alt[i] = samples[si].Position(), float64(alts[si])
		default:
			x := ti.Sub(samples[si].Time).Seconds() / samples[si+1].Time.Sub(samples[si].Time).Seconds()
			p = math.Point2LL(math.Lerp2(x, [2]float64(samples[si].Position()), [2]float64(samples[si+1].Position())))
			alt[i] = math.Lerp(x, float64(alts[si]), float64(alts[si+1]))
		}

		drift := opts.Wind.DisplacementNM(ti.Sub(traj.Start))
		pos[i] = math.Add2(math.LL2NM(p, nmPerLongitude), drift)
	}

	heading, pitch, bank := deriveAttitude(pos, alt, opts.Tick.Seconds())

	for i := range nTicks {
		pt := &traj.Points[i]
		if opts.Frame == FrameLocalNM {
			pt.P = math.Sub2(pos[i], refNM)
		} else {
			pt.P = [2]float64(math.NM2LL(pos[i], nmPerLongitude))
		}
		pt.Alt = float32(alt[i])
		pt.Heading = float32(heading[i])
		pt.Pitch = float32(pitch[i])
		pt.Bank = float32(bank[i])
	}

	return traj, nil
}

// deriveAttitude computes per-tick heading, pitch, and bank from the
// flat-frame positions and altitudes. Heading comes from successive
// positions; pitch from climb rate against groundspeed; bank from the
// coordinated-turn relation tan(bank) = v*omega/g. Each series gets a
// light boxcar smoothing so the viewer doesn't twitch, with window
// lengths inherited from what looks right at 3D replay speed.
func deriveAttitude(pos [][2]float64, alt []float64, tickSec float64) (heading, pitch, bank []float64) {
	n := len(pos)
	heading = make([]float64, n)
	pitch = make([]float64, n)
	bank = make([]float64, n)
	if n < 2 {
		return
	}

	// Unwrapped heading and groundspeed per segment; the last point
	// continues its predecessor's values.
	speed := make([]float64, n) // m/s
	for i := range n - 1 {
		d := math.Sub2(pos[i+1], pos[i])
		raw := math.VectorHeading(d)
		if i == 0 {
			heading[0] = raw
		} else {
			heading[i] = heading[i-1] + math.HeadingSignedTurn(math.NormalizeHeading(heading[i-1]), raw)
		}
		speed[i] = math.NMToMeters(math.Length2(d)) / tickSec
	}
	heading[n-1] = heading[n-2]
	speed[n-1] = speed[n-2]

	smoothedSpeed := boxcar(speed, int(5/tickSec))

	for i := range n {
		// Turn rate from the unsmoothed heading, like the speed from
		// raw deltas; the boxcar at the end settles both.
		var omega float64 // rad/s
		if i < n-1 {
			omega = math.Radians(heading[i+1]-heading[i]) / tickSec
		}
		bank[i] = math.Degrees(math.Atan(omega * smoothedSpeed[i] / 9.81))

		var climb float64 // m/s
		if i < n-1 {
			climb = (alt[i+1] - alt[i]) / tickSec
		}
		if smoothedSpeed[i] > 0.1 {
			pitch[i] = math.Degrees(math.Atan(climb / smoothedSpeed[i]))
		}
	}

	heading = boxcar(heading, int(4/tickSec))
	for i := range heading {
		heading[i] = math.NormalizeHeading(heading[i])
	}
	bank = boxcar(bank, int(5/tickSec))
	pitch = boxcar(pitch, int(2/tickSec))
	return
}

// boxcar applies a running average of n points (forced odd), repeating
// the end values so the output doesn't pull toward zero at the edges.
func boxcar(d []float64, n int) []float64 {
	n = n/2*2 + 1
	if n <= 1 || len(d) == 0 {
		return d
	}

	m := n / 2
	out := make([]float64, len(d))
	for i := range d {
		sum := 0.0
		for j := i - m; j <= i+m; j++ {
			sum += d[min(max(j, 0), len(d)-1)]
		}
		out[i] = sum / float64(n)
	}
	return out
}
