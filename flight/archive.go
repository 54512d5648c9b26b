// flight/archive.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package flight

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/mmp/gaggle/math"
	"github.com/mmp/gaggle/util"
	"github.com/mmp/gaggle/wind"
	"github.com/vmihailenco/msgpack/v5"
)

// ArchiveVersion is bumped whenever the archive layout changes
// incompatibly. Adding fields doesn't count; the msgpack map encoding
// lets older readers skip fields they don't know.
const ArchiveVersion = 1

// ErrSchema indicates a file that isn't a flight archive or was written
// by an incompatible version.
var ErrSchema = errors.New("unrecognized flight archive schema")

// archiveFile is the on-disk layout: set parameters plus one
// struct-of-arrays block per aircraft. Columns are quantized onto the
// frame grids and delta-encoded, which leaves mostly-small values for
// zstd to chew on.
type archiveFile struct {
	Version        int
	Built          time.Time
	Window         util.TimeInterval
	Tick           time.Duration
	Wind           wind.Vector
	Frame          int
	Ref            [2]float64
	NMPerLongitude float64
	Aircraft       []archiveAircraft
}

type archiveAircraft struct {
	ID         string
	Pilot      string
	GliderType string

	Lat     []int32 // delta-encoded, 1e-7 degrees
	Lon     []int32 // delta-encoded, 1e-7 degrees
	Alt     []int32 // delta-encoded decimeters
	Heading []int16 // delta-encoded centidegrees
	Pitch   []int16 // delta-encoded centidegrees
	Bank    []int16 // delta-encoded centidegrees
}

// Save writes the trajectory set to w as a versioned archive. A set
// saved and loaded back replays identically to the original, since both
// go through the same frame quantization.
func Save(w io.Writer, set *Set) error {
	doc := archiveFile{
		Version:        ArchiveVersion,
		Built:          time.Now().UTC(),
		Window:         set.Window,
		Tick:           set.Tick,
		Wind:           set.Wind,
		Frame:          int(set.Frame),
		Ref:            [2]float64(set.Ref),
		NMPerLongitude: set.NMPerLongitude,
	}

	for _, traj := range set.Trajectories {
		n := len(traj.Points)
		ac := archiveAircraft{
			ID:         traj.ID,
			Pilot:      traj.Pilot,
			GliderType: traj.GliderType,
			Lat:        make([]int32, n),
			Lon:        make([]int32, n),
			Alt:        make([]int32, n),
			Heading:    make([]int16, n),
			Pitch:      make([]int16, n),
			Bank:       make([]int16, n),
		}
		for i := range n {
			fa := traj.frameAircraft(i)
			ac.Lat[i], ac.Lon[i], ac.Alt[i] = fa.Lat, fa.Lon, fa.Alt
			ac.Heading[i], ac.Pitch[i], ac.Bank[i] = fa.Heading, fa.Pitch, fa.Bank
		}
		ac.Lat, ac.Lon, ac.Alt = util.DeltaEncode(ac.Lat), util.DeltaEncode(ac.Lon), util.DeltaEncode(ac.Alt)
		ac.Heading, ac.Pitch, ac.Bank = util.DeltaEncode(ac.Heading), util.DeltaEncode(ac.Pitch), util.DeltaEncode(ac.Bank)
		doc.Aircraft = append(doc.Aircraft, ac)
	}

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	defer zw.Close()

	if err := msgpack.NewEncoder(zw).Encode(doc); err != nil {
		return fmt.Errorf("failed to encode flight archive: %w", err)
	}
	return zw.Close()
}

// Load reads a trajectory set previously written by Save. Files that
// don't decode or that carry an unknown version report ErrSchema.
func Load(r io.Reader) (*Set, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrSchema)
	}
	defer zr.Close()

	var doc archiveFile
	if err := msgpack.NewDecoder(zr).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrSchema)
	}
	if doc.Version != ArchiveVersion {
		return nil, fmt.Errorf("version %d: %w", doc.Version, ErrSchema)
	}
	if doc.Tick <= 0 || !doc.Window.IsValid() {
		return nil, fmt.Errorf("window/tick: %w", ErrSchema)
	}

	set := &Set{
		Window:         doc.Window,
		Tick:           doc.Tick,
		Wind:           doc.Wind,
		Frame:          FrameType(doc.Frame),
		Ref:            math.Point2LL(doc.Ref),
		NMPerLongitude: doc.NMPerLongitude,
	}

	nTicks := int(doc.Window.Duration()/doc.Tick) + 1
	refNM := math.LL2NM(set.Ref, set.NMPerLongitude)
	for _, ac := range doc.Aircraft {
		lat, lon, alt := util.DeltaDecode(ac.Lat), util.DeltaDecode(ac.Lon), util.DeltaDecode(ac.Alt)
		hdg, pitch, bank := util.DeltaDecode(ac.Heading), util.DeltaDecode(ac.Pitch), util.DeltaDecode(ac.Bank)
		for _, col := range [][]int32{lat, lon, alt} {
			if len(col) != nTicks {
				return nil, fmt.Errorf("%s: %d points for %d ticks: %w", ac.ID, len(col), nTicks, ErrSchema)
			}
		}
		for _, col := range [][]int16{hdg, pitch, bank} {
			if len(col) != nTicks {
				return nil, fmt.Errorf("%s: %d points for %d ticks: %w", ac.ID, len(col), nTicks, ErrSchema)
			}
		}

		traj := &Trajectory{
			ID:             ac.ID,
			Pilot:          ac.Pilot,
			GliderType:     ac.GliderType,
			Frame:          set.Frame,
			Ref:            set.Ref,
			NMPerLongitude: set.NMPerLongitude,
			Start:          set.Window.Start(),
			Tick:           set.Tick,
			Points:         make([]Point, nTicks),
		}
		for i := range nTicks {
			p := math.Point2LL{float64(lon[i]) / PositionScale, float64(lat[i]) / PositionScale}
			pt := &traj.Points[i]
			if set.Frame == FrameLocalNM {
				pt.P = math.Sub2(math.LL2NM(p, set.NMPerLongitude), refNM)
			} else {
				pt.P = [2]float64(p)
			}
			pt.Alt = float32(alt[i]) / AltitudeScale
			pt.Heading = float32(math.NormalizeHeading(float64(hdg[i]) / AttitudeScale))
			pt.Pitch = float32(pitch[i]) / AttitudeScale
			pt.Bank = float32(bank[i]) / AttitudeScale
		}
		set.Trajectories = append(set.Trajectories, traj)
	}

	return set, nil
}

// CheckArchive verifies that loaded carries exactly the state saved
// would replay: same parameters and field-for-field identical frames.
// Mismatches accumulate in e rather than stopping at the first.
func CheckArchive(saved, loaded *Set, e *util.ErrorLogger) {
	if !loaded.Window.Start().Equal(saved.Window.Start()) || !loaded.Window.End().Equal(saved.Window.End()) {
		e.ErrorString("window mismatch: %v - %v", saved.Window, loaded.Window)
	}
	if loaded.Tick != saved.Tick {
		e.ErrorString("tick mismatch: %v - %v", saved.Tick, loaded.Tick)
	}
	if loaded.Wind != saved.Wind {
		e.ErrorString("wind mismatch: %v - %v", saved.Wind, loaded.Wind)
	}
	if loaded.Frame != saved.Frame {
		e.ErrorString("frame mismatch: %v - %v", saved.Frame, loaded.Frame)
	}
	if loaded.Ref != saved.Ref {
		e.ErrorString("reference point mismatch: %v - %v", saved.Ref, loaded.Ref)
	}

	sf, err := Frames(saved)
	if err != nil {
		e.Error(err)
		return
	}
	lf, err := Frames(loaded)
	if err != nil {
		e.Error(err)
		return
	}
	if len(sf) != len(lf) {
		e.ErrorString("frame count mismatch: %d - %d", len(sf), len(lf))
		return
	}

	for i := range sf {
		e.Push(fmt.Sprintf("frame %d", i))
		if !sf[i].Time.Equal(lf[i].Time) {
			e.ErrorString("time mismatch: %v - %v", sf[i].Time, lf[i].Time)
		}
		if len(sf[i].Aircraft) != len(lf[i].Aircraft) {
			e.ErrorString("aircraft count mismatch: %d - %d", len(sf[i].Aircraft), len(lf[i].Aircraft))
			e.Pop()
			continue
		}
		for j := range sf[i].Aircraft {
			sa, la := sf[i].Aircraft[j], lf[i].Aircraft[j]
			e.Push(sa.ID)
			if sa != la {
				e.ErrorString("state mismatch: %+v - %+v", sa, la)
			}
			e.Pop()
		}
		e.Pop()
	}
}
