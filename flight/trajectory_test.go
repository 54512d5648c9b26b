// flight/trajectory_test.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package flight

import (
	"errors"
	"testing"
	"time"

	"github.com/mmp/gaggle/igc"
	"github.com/mmp/gaggle/math"
	"github.com/mmp/gaggle/util"
	"github.com/mmp/gaggle/wind"
)

var testStart = time.Date(2021, 7, 15, 10, 0, 0, 0, time.UTC)

// alpsBase is roughly where the test flights fly.
var alpsBase = math.Point2LL{11, 47}

// synthTrack builds a track with n samples at the given spacing; at
// returns the position and altitude of sample i.
func synthTrack(id string, start time.Time, spacing time.Duration, n int,
	at func(i int) (math.Point2LL, float32)) *igc.Track {
	trk := &igc.Track{
		CompID:    id,
		Date:      testStart.Truncate(24 * time.Hour),
		AltSource: igc.AltitudeGNSS,
	}
	for i := range n {
		p, alt := at(i)
		trk.Samples = append(trk.Samples, igc.Sample{
			Time:    start.Add(time.Duration(i) * spacing),
			Lat:     p.Latitude(),
			Lon:     p.Longitude(),
			AltGNSS: alt,
		})
	}
	return trk
}

// movingTrack flies a straight line from alpsBase at the given
// groundspeed and heading, climbing at the given rate.
func movingTrack(id string, start time.Time, spacing time.Duration, n int,
	speedMPS, heading, climbMPS float64) *igc.Track {
	nmPerLon := math.NMPerLongitudeAt(alpsBase)
	baseNM := math.LL2NM(alpsBase, nmPerLon)
	dir := math.HeadingVector(heading)
	return synthTrack(id, start, spacing, n, func(i int) (math.Point2LL, float32) {
		sec := float64(i) * spacing.Seconds()
		p := math.Add2(baseNM, math.Scale2(dir, math.MetersToNM(speedMPS*sec)))
		return math.NM2LL(p, nmPerLon), float32(1000 + climbMPS*sec)
	})
}

func window(d time.Duration) util.TimeInterval {
	return util.TimeInterval{testStart, testStart.Add(d)}
}

func TestBuildResampleLinear(t *testing.T) {
	// Samples every 10s; resample at 5s and check the interpolated
	// half-steps.
	trk := synthTrack("XG", testStart, 10*time.Second, 7, func(i int) (math.Point2LL, float32) {
		return math.Point2LL{11, 47 + 0.001*float64(i)}, float32(1000 + 10*i)
	})

	set, excluded, err := Build([]*igc.Track{trk},
		BuildOptions{Window: window(time.Minute), Tick: 5 * time.Second}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(excluded) != 0 {
		t.Fatalf("unexpected exclusions: %v", excluded)
	}
	if len(set.Trajectories) != 1 {
		t.Fatalf("got %d trajectories, expected 1", len(set.Trajectories))
	}

	traj := set.Trajectories[0]
	if len(traj.Points) != 13 {
		t.Fatalf("got %d points, expected 13", len(traj.Points))
	}
	for i := range traj.Points {
		p := traj.Position(i)
		wantLat := 47 + 0.0005*float64(i)
		if math.Abs(p.Latitude()-wantLat) > 1e-9 {
			t.Errorf("point %d: latitude %.9f, expected %.9f", i, p.Latitude(), wantLat)
		}
		if math.Abs(p.Longitude()-11) > 1e-9 {
			t.Errorf("point %d: longitude %.9f, expected 11", i, p.Longitude())
		}
		wantAlt := float32(1000 + 5*i)
		if math.Abs(traj.Points[i].Alt-wantAlt) > 0.01 {
			t.Errorf("point %d: altitude %.3f, expected %.1f", i, traj.Points[i].Alt, wantAlt)
		}
		if !traj.Time(i).Equal(testStart.Add(time.Duration(i) * 5 * time.Second)) {
			t.Errorf("point %d: time %v", i, traj.Time(i))
		}
	}
}

func TestBuildEdgeHold(t *testing.T) {
	// Fixes only cover 20s-40s of a 60s window; grid points outside
	// that hold the nearest fix.
	trk := synthTrack("XG", testStart.Add(20*time.Second), 10*time.Second, 3,
		func(i int) (math.Point2LL, float32) {
			return math.Point2LL{11, 47 + 0.001*float64(i)}, 1000
		})

	set, _, err := Build([]*igc.Track{trk},
		BuildOptions{Window: window(time.Minute), Tick: 5 * time.Second}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	traj := set.Trajectories[0]

	for _, tc := range []struct {
		tick    int
		wantLat float64
	}{
		{0, 47},      // before first fix
		{3, 47},      // still before
		{4, 47},      // exactly at first fix
		{5, 47.0005}, // interpolated
		{6, 47.001},
		{8, 47.002}, // exactly at last fix
		{10, 47.002},
		{12, 47.002}, // held past the end
	} {
		if lat := traj.Position(tc.tick).Latitude(); math.Abs(lat-tc.wantLat) > 1e-9 {
			t.Errorf("tick %d: latitude %.6f, expected %.6f", tc.tick, lat, tc.wantLat)
		}
	}
}

func TestBuildExcludesShortTracks(t *testing.T) {
	good := movingTrack("AA", testStart, time.Second, 70, 30, 90, 0)
	early := movingTrack("BB", testStart.Add(-time.Hour), time.Second, 70, 30, 90, 0)
	oneFix := synthTrack("CC", testStart.Add(10*time.Second), time.Second, 1,
		func(int) (math.Point2LL, float32) { return alpsBase, 1000 })

	set, excluded, err := Build([]*igc.Track{good, early, oneFix},
		BuildOptions{Window: window(time.Minute), Tick: 5 * time.Second}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(set.Trajectories) != 1 || set.Trajectories[0].ID != "AA" {
		t.Errorf("expected only AA to survive, got %d trajectories", len(set.Trajectories))
	}
	for _, id := range []string{"BB", "CC"} {
		if err, ok := excluded[id]; !ok {
			t.Errorf("%s: expected exclusion", id)
		} else if !errors.Is(err, ErrWindow) {
			t.Errorf("%s: expected ErrWindow, got %v", id, err)
		}
	}
}

func TestBuildWindCorrection(t *testing.T) {
	trk := movingTrack("XG", testStart, time.Second, 70, 30, 90, 0)
	opts := BuildOptions{Window: window(time.Minute), Tick: 5 * time.Second}

	calm, _, err := Build([]*igc.Track{trk}, opts, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	w := wind.FromKnots(315, 10)
	opts.Wind = w
	blown, _, err := Build([]*igc.Track{trk}, opts, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// The corrected positions should sit exactly one accumulated
	// air-mass displacement from the uncorrected ones, and the negated
	// wind's displacement should bring them back.
	tc, tw := calm.Trajectories[0], blown.Trajectories[0]
	for i := range tc.Points {
		elapsed := time.Duration(i) * 5 * time.Second
		got := math.Sub2(tw.LocalNM(i), tc.LocalNM(i))
		if drift := w.DisplacementNM(elapsed); math.Distance2(got, drift) > 1e-9 {
			t.Errorf("tick %d: displacement %v, expected %v", i, got, drift)
		}

		undone := math.Add2(tw.LocalNM(i), w.Negated().DisplacementNM(elapsed))
		if math.Distance2(undone, tc.LocalNM(i)) > 1e-9 {
			t.Errorf("tick %d: negated wind leaves residual %v", i,
				math.Sub2(undone, tc.LocalNM(i)))
		}
	}
}

func TestBuildAttitudeStraight(t *testing.T) {
	// Eastbound at 30 m/s climbing 1.5 m/s: heading 90, pitch
	// atan(1.5/30), wings level.
	trk := movingTrack("XG", testStart, time.Second, 130, 30, 90, 1.5)

	set, _, err := Build([]*igc.Track{trk},
		BuildOptions{Window: window(2 * time.Minute), Tick: time.Second}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	traj := set.Trajectories[0]

	wantPitch := math.Degrees(math.Atan(1.5 / 30))
	for i := 5; i < len(traj.Points)-5; i++ {
		pt := traj.Points[i]
		if math.Abs(float64(pt.Heading)-90) > 0.1 {
			t.Errorf("tick %d: heading %.2f, expected 90", i, pt.Heading)
		}
		if math.Abs(float64(pt.Pitch)-wantPitch) > 0.1 {
			t.Errorf("tick %d: pitch %.2f, expected %.2f", i, pt.Pitch, wantPitch)
		}
		if math.Abs(float64(pt.Bank)) > 0.1 {
			t.Errorf("tick %d: bank %.2f, expected 0", i, pt.Bank)
		}
		if gs := traj.GroundSpeed(i); math.Abs(gs-30) > 0.1 {
			t.Errorf("tick %d: groundspeed %.2f, expected 30", i, gs)
		}
	}
}

func TestBuildAttitudeTurning(t *testing.T) {
	// A steady right-hand thermal circle: 25 m/s at 0.35 rad/s turn
	// rate. Bank should settle near the coordinated-turn value.
	const speed, omega = 25.0, 0.35
	radius := speed / omega // meters
	nmPerLon := math.NMPerLongitudeAt(alpsBase)
	baseNM := math.LL2NM(alpsBase, nmPerLon)
	trk := synthTrack("XG", testStart, time.Second, 70, func(i int) (math.Point2LL, float32) {
		a := omega * float64(i)
		p := math.Add2(baseNM, math.Scale2([2]float64{math.Sin(a), math.Cos(a)}, math.MetersToNM(radius)))
		return math.NM2LL(p, nmPerLon), 1500
	})

	set, _, err := Build([]*igc.Track{trk},
		BuildOptions{Window: window(time.Minute), Tick: time.Second}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	traj := set.Trajectories[0]

	wantBank := math.Degrees(math.Atan(omega * speed / 9.81))
	for i := 10; i < 50; i++ {
		bank := float64(traj.Points[i].Bank)
		if math.Abs(bank-wantBank) > 1.5 {
			t.Errorf("tick %d: bank %.2f, expected about %.2f", i, bank, wantBank)
		}
	}

	// Heading should advance about omega per tick, constantly turning
	// through north without jumps.
	for i := 10; i < 49; i++ {
		turn := math.HeadingSignedTurn(float64(traj.Points[i].Heading), float64(traj.Points[i+1].Heading))
		if math.Abs(turn-math.Degrees(omega)) > 1 {
			t.Errorf("tick %d: turn %.2f deg/tick, expected about %.2f", i, turn, math.Degrees(omega))
		}
	}
}

func TestBuildSortedByID(t *testing.T) {
	var tracks []*igc.Track
	for _, id := range []string{"ZZ", "AA", "MM"} {
		tracks = append(tracks, movingTrack(id, testStart, time.Second, 70, 30, 90, 0))
	}

	set, _, err := Build(tracks, BuildOptions{Window: window(time.Minute), Tick: 5 * time.Second}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var ids []string
	for _, traj := range set.Trajectories {
		ids = append(ids, traj.ID)
	}
	if len(ids) != 3 || ids[0] != "AA" || ids[1] != "MM" || ids[2] != "ZZ" {
		t.Errorf("got order %v, expected [AA MM ZZ]", ids)
	}
}

func TestBuildDuplicateID(t *testing.T) {
	a := movingTrack("XG", testStart, time.Second, 70, 30, 90, 0)
	b := movingTrack("XG", testStart, time.Second, 70, 25, 180, 0)

	set, excluded, err := Build([]*igc.Track{a, b},
		BuildOptions{Window: window(time.Minute), Tick: 5 * time.Second}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(set.Trajectories) != 1 {
		t.Errorf("got %d trajectories, expected 1", len(set.Trajectories))
	}
	if _, ok := excluded["XG"]; !ok {
		t.Errorf("expected a duplicate-id exclusion for XG")
	}
}

func TestBuildFramePolicies(t *testing.T) {
	trk := movingTrack("XG", testStart, time.Second, 70, 30, 90, 0)

	geo, _, err := Build([]*igc.Track{trk},
		BuildOptions{Window: window(time.Minute), Tick: 5 * time.Second, Frame: FrameGeodetic}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	local, _, err := Build([]*igc.Track{trk},
		BuildOptions{Window: window(time.Minute), Tick: 5 * time.Second, Frame: FrameLocalNM}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Same flight either way: the frames only change what Points[].P
	// means, not where the aircraft is.
	tg, tl := geo.Trajectories[0], local.Trajectories[0]
	for i := range tg.Points {
		if d := math.NMDistance2LLFast(tg.Position(i), tl.Position(i), geo.NMPerLongitude); d > 1e-7 {
			t.Errorf("tick %d: positions differ by %.9f NM between frames", i, d)
		}
		if d := math.Distance2(tg.LocalNM(i), tl.LocalNM(i)); d > 1e-7 {
			t.Errorf("tick %d: local offsets differ by %.9f NM between frames", i, d)
		}
	}
}

func TestBuildOptionsValidation(t *testing.T) {
	trk := movingTrack("XG", testStart, time.Second, 70, 30, 90, 0)
	good := BuildOptions{Window: window(time.Minute), Tick: 5 * time.Second}

	bad := good
	bad.Window = util.TimeInterval{testStart.Add(time.Minute), testStart}
	if _, _, err := Build([]*igc.Track{trk}, bad, nil); err == nil {
		t.Errorf("expected error for reversed window")
	}

	bad = good
	bad.Tick = 0
	if _, _, err := Build([]*igc.Track{trk}, bad, nil); err == nil {
		t.Errorf("expected error for zero tick")
	}

	if _, _, err := Build(nil, good, nil); err == nil {
		t.Errorf("expected error for no tracks")
	}
}

func TestBoxcar(t *testing.T) {
	// Constant series stays constant, including the padded ends.
	c := []float64{4, 4, 4, 4, 4, 4}
	for i, v := range boxcar(c, 5) {
		if v != 4 {
			t.Errorf("index %d: got %f, expected 4", i, v)
		}
	}

	// A step gets ramped over the window.
	s := boxcar([]float64{0, 0, 0, 6, 6, 6}, 3)
	want := []float64{0, 0, 2, 4, 6, 6}
	for i := range want {
		if math.Abs(s[i]-want[i]) > 1e-9 {
			t.Errorf("index %d: got %f, expected %f", i, s[i], want[i])
		}
	}

	// Even lengths round up to odd; 0 and 1 are identity.
	in := []float64{1, 2, 3}
	for _, n := range []int{0, 1} {
		out := boxcar(in, n)
		for i := range in {
			if out[i] != in[i] {
				t.Errorf("n=%d index %d: got %f, expected %f", n, i, out[i], in[i])
			}
		}
	}
}
