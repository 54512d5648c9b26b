// igc/igc.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package igc

import (
	"time"

	"github.com/mmp/gaggle/math"
	"github.com/mmp/gaggle/util"
)

// AltitudeSource identifies which of a track's altitude series is usable
// for analysis. Flight recorders carry both a pressure altitude and a GNSS
// altitude in each fix; either may be absent (recorded as zero), and when
// both are present the pressure altitude calibrated against GNSS is the
// most trustworthy.
type AltitudeSource int

const (
	AltitudeGNSS AltitudeSource = iota
	AltitudePressure
	AltitudePressureCalibrated
)

func (a AltitudeSource) String() string {
	return [...]string{"GNSS", "pressure", "calibrated pressure"}[a]
}

// Sample is a single position fix from a flight log. Times are UTC with
// one second resolution; altitudes are meters.
type Sample struct {
	Time    time.Time
	Lat     float64 // degrees, positive north
	Lon     float64 // degrees, positive east
	AltBaro float32 // pressure altitude
	AltGNSS float32
}

// Position returns the sample's location as a Point2LL.
func (s Sample) Position() math.Point2LL {
	return math.Point2LL{s.Lon, s.Lat}
}

// Track is the parsed form of one flight log: identity from the header
// records plus the ordered fix sequence. Sample times are strictly
// increasing; the parser drops duplicate and out-of-order fixes rather
// than reordering them.
type Track struct {
	LoggerID   string
	Date       time.Time // start of the flight day, UTC
	Pilot      string
	GliderType string
	GliderID   string
	CompID     string
	CompClass  string

	AltSource AltitudeSource
	Samples   []Sample

	// Fixes dropped during parsing: malformed or void records, and
	// repeated timestamps from buggy logger firmware.
	Skipped    int
	Duplicates int
}

// ID returns the track's aircraft identifier: the competition id if the
// log carries one, otherwise the glider registration, otherwise the
// logger serial.
func (t *Track) ID() string {
	if t.CompID != "" {
		return t.CompID
	}
	if t.GliderID != "" {
		return t.GliderID
	}
	return t.LoggerID
}

// Interval returns the time span covered by the track's samples.
func (t *Track) Interval() util.TimeInterval {
	if len(t.Samples) == 0 {
		return util.TimeInterval{}
	}
	return util.TimeInterval{t.Samples[0].Time, t.Samples[len(t.Samples)-1].Time}
}

// SampleInterval returns the track's average fix spacing, rounded to the
// nearest second. Contest loggers record every 1-4 seconds; anything
// slower is a sign the log isn't suitable for close-proximity analysis.
func (t *Track) SampleInterval() time.Duration {
	if len(t.Samples) < 2 {
		return 0
	}
	d := t.Samples[len(t.Samples)-1].Time.Sub(t.Samples[0].Time)
	return (d / time.Duration(len(t.Samples)-1)).Round(time.Second)
}

// Altitudes returns the per-sample altitude series for the track's
// selected altitude source.
func (t *Track) Altitudes() []float32 {
	switch t.AltSource {
	case AltitudePressure:
		return util.MapSlice(t.Samples, func(s Sample) float32 { return s.AltBaro })
	case AltitudePressureCalibrated:
		return t.CalibratedBaro()
	default:
		return util.MapSlice(t.Samples, func(s Sample) float32 { return s.AltGNSS })
	}
}

// CalibratedBaro returns the track's pressure altitudes corrected using
// the GNSS altitudes: the mean GNSS-minus-pressure error is computed for
// each 100 m band of pressure altitude and then linearly interpolated
// back onto each sample. Pressure altitude is smooth but offset by the
// day's QNH; GNSS altitude is absolute but noisy; the combination keeps
// the smoothness while removing the offset. Implemented as a pure pass
// over the samples so reparsing or recalibrating is always a no-op.
func (t *Track) CalibratedBaro() []float32 {
	const binSize = 100 // meters

	baro := util.MapSlice(t.Samples, func(s Sample) float32 { return s.AltBaro })
	if len(baro) == 0 {
		return nil
	}

	haveGNSS := false
	minAlt, maxAlt := baro[0], baro[0]
	for i, b := range baro {
		minAlt = min(minAlt, b)
		maxAlt = max(maxAlt, b)
		if t.Samples[i].AltGNSS != 0 {
			haveGNSS = true
		}
	}
	if !haveGNSS {
		return baro
	}

	// Accumulate the mean error in each pressure altitude band. Fixes
	// without a GNSS altitude contribute nothing.
	lo := float32(math.Floor(float64(minAlt)/binSize)) * binSize
	nBins := int((maxAlt-lo)/binSize) + 1
	sum := make([]float64, nBins)
	count := make([]int, nBins)
	for _, s := range t.Samples {
		if s.AltGNSS == 0 {
			continue
		}
		bin := int((s.AltBaro - lo) / binSize)
		sum[bin] += float64(s.AltGNSS - s.AltBaro)
		count[bin]++
	}

	// Interpolation knots at the centers of the occupied bands.
	var knotAlt, knotErr []float64
	for i := range nBins {
		if count[i] > 0 {
			knotAlt = append(knotAlt, float64(lo)+binSize*(float64(i)+0.5))
			knotErr = append(knotErr, sum[i]/float64(count[i]))
		}
	}

	cal := make([]float32, len(baro))
	for i, b := range baro {
		cal[i] = b + float32(interpKnots(float64(b), knotAlt, knotErr))
	}
	return cal
}

// interpKnots evaluates the piecewise-linear function through the given
// knots at x, holding the end values constant outside the knot range.
func interpKnots(x float64, xs, ys []float64) float64 {
	if x <= xs[0] {
		return ys[0]
	}
	for i := 1; i < len(xs); i++ {
		if x <= xs[i] {
			return math.Lerp((x-xs[i-1])/(xs[i]-xs[i-1]), ys[i-1], ys[i])
		}
	}
	return ys[len(ys)-1]
}

// NormalizeGeoid returns a copy of the track with GNSS altitudes
// converted from ellipsoid to geoid reference if they appear to need it.
// Recorders are supposed to log ellipsoid altitude but many log geoid
// altitude instead; comparing the altitude at takeoff against the known
// field elevation, with and without the local geoid height subtracted,
// tells us which convention the recorder used. The returned residual is
// the takeoff altitude error under the better interpretation; more than
// ten meters or so suggests the field elevation is wrong.
func (t *Track) NormalizeGeoid(fieldElevation, geoidHeight float32) (*Track, bool, float32) {
	n := min(10, len(t.Samples))
	if n == 0 {
		return t, false, 0
	}

	var takeoff float32
	for _, s := range t.Samples[:n] {
		takeoff += s.AltGNSS
	}
	takeoff /= float32(n)

	errGeoid := math.Abs(takeoff - fieldElevation)
	errEllipsoid := math.Abs(takeoff - geoidHeight - fieldElevation)
	if errEllipsoid >= errGeoid {
		// Already geoid referenced.
		return t, false, errGeoid
	}

	nt := *t
	nt.Samples = util.MapSlice(t.Samples, func(s Sample) Sample {
		s.AltGNSS -= geoidHeight
		return s
	})
	return &nt, true, errEllipsoid
}
