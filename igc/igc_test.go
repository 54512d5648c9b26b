// igc/igc_test.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package igc

import (
	"math"
	"testing"
	"time"
)

func altTrack(alts ...[2]float32) *Track {
	t := &Track{CompID: "XG", Date: time.Date(2021, 7, 15, 0, 0, 0, 0, time.UTC)}
	for i, a := range alts {
		t.Samples = append(t.Samples, Sample{
			Time:    t.Date.Add(time.Duration(10*3600+4*i) * time.Second),
			Lat:     52,
			Lon:     -1,
			AltBaro: a[0],
			AltGNSS: a[1],
		})
	}
	return t
}

func TestCalibratedBaroConstantOffset(t *testing.T) {
	trk := altTrack([2]float32{1000, 1050}, [2]float32{1100, 1150}, [2]float32{1200, 1250})

	cal := trk.CalibratedBaro()
	for i, want := range []float32{1050, 1150, 1250} {
		if math.Abs(float64(cal[i]-want)) > 1e-3 {
			t.Errorf("calibrated[%d] = %v, expected %v", i, cal[i], want)
		}
	}
}

func TestCalibratedBaroInterpolation(t *testing.T) {
	// Two calibration bands with different errors; the fix without a
	// GNSS altitude lands between their centers and gets the blend.
	trk := altTrack([2]float32{110, 120}, [2]float32{250, 280}, [2]float32{200, 0})

	cal := trk.CalibratedBaro()
	for i, want := range []float32{120, 280, 220} {
		if math.Abs(float64(cal[i]-want)) > 1e-3 {
			t.Errorf("calibrated[%d] = %v, expected %v", i, cal[i], want)
		}
	}
}

func TestCalibratedBaroNoGNSS(t *testing.T) {
	trk := altTrack([2]float32{1000, 0}, [2]float32{1100, 0})

	cal := trk.CalibratedBaro()
	for i, want := range []float32{1000, 1100} {
		if cal[i] != want {
			t.Errorf("calibrated[%d] = %v, expected unchanged %v", i, cal[i], want)
		}
	}
}

func TestAltitudes(t *testing.T) {
	trk := altTrack([2]float32{1000, 1050}, [2]float32{1100, 1150})

	trk.AltSource = AltitudePressure
	if alts := trk.Altitudes(); alts[0] != 1000 || alts[1] != 1100 {
		t.Errorf("pressure altitudes %v", alts)
	}
	trk.AltSource = AltitudeGNSS
	if alts := trk.Altitudes(); alts[0] != 1050 || alts[1] != 1150 {
		t.Errorf("GNSS altitudes %v", alts)
	}
	trk.AltSource = AltitudePressureCalibrated
	if alts := trk.Altitudes(); math.Abs(float64(alts[0]-1050)) > 1e-3 {
		t.Errorf("calibrated altitudes %v", alts)
	}
}

func TestNormalizeGeoid(t *testing.T) {
	const elevation, geoid = 120, 48

	// Ellipsoid-referenced recorder: takeoff altitude reads elevation
	// plus the geoid height.
	trk := altTrack([2]float32{160, 168}, [2]float32{161, 168}, [2]float32{162, 168})
	nt, subtracted, residual := trk.NormalizeGeoid(elevation, geoid)
	if !subtracted {
		t.Errorf("expected geoid height to be subtracted")
	}
	if nt.Samples[0].AltGNSS != 120 {
		t.Errorf("corrected GNSS altitude %v, expected 120", nt.Samples[0].AltGNSS)
	}
	if residual != 0 {
		t.Errorf("residual %v, expected 0", residual)
	}
	if trk.Samples[0].AltGNSS != 168 {
		t.Errorf("original track was modified")
	}

	// Geoid-referenced recorder: takeoff altitude already reads the
	// field elevation.
	trk = altTrack([2]float32{160, 121}, [2]float32{161, 121}, [2]float32{162, 121})
	nt, subtracted, residual = trk.NormalizeGeoid(elevation, geoid)
	if subtracted {
		t.Errorf("geoid height should not be subtracted")
	}
	if nt.Samples[0].AltGNSS != 121 {
		t.Errorf("GNSS altitude %v, expected unchanged 121", nt.Samples[0].AltGNSS)
	}
	if residual != 1 {
		t.Errorf("residual %v, expected 1", residual)
	}
}

func TestTrackInterval(t *testing.T) {
	trk := altTrack([2]float32{1000, 1050}, [2]float32{1100, 1150}, [2]float32{1200, 1250})

	iv := trk.Interval()
	if !iv.Start().Equal(trk.Samples[0].Time) || !iv.End().Equal(trk.Samples[2].Time) {
		t.Errorf("interval %v-%v", iv.Start(), iv.End())
	}
	if iv.Duration() != 8*time.Second {
		t.Errorf("duration %v, expected 8s", iv.Duration())
	}

	if iv := (&Track{}).Interval(); iv.IsValid() {
		t.Errorf("empty track gave valid interval %v", iv)
	}
}

func TestSampleInterval(t *testing.T) {
	trk := altTrack([2]float32{1000, 0}, [2]float32{1001, 0}, [2]float32{1002, 0})
	if got := trk.SampleInterval(); got != 4*time.Second {
		t.Errorf("sample interval %v, expected 4s", got)
	}
	if got := (&Track{}).SampleInterval(); got != 0 {
		t.Errorf("empty track sample interval %v", got)
	}
}

func TestTrackID(t *testing.T) {
	tests := []struct {
		name     string
		track    Track
		expected string
	}{
		{"competition id", Track{LoggerID: "FLA6M3", GliderID: "D-KWIT", CompID: "XG"}, "XG"},
		{"glider id", Track{LoggerID: "FLA6M3", GliderID: "D-KWIT"}, "D-KWIT"},
		{"logger id", Track{LoggerID: "FLA6M3"}, "FLA6M3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.track.ID(); got != tc.expected {
				t.Errorf("ID() = %q, expected %q", got, tc.expected)
			}
		})
	}
}

func TestSamplePosition(t *testing.T) {
	s := Sample{Lat: 52.5, Lon: -1.25}
	p := s.Position()
	if p.Latitude() != 52.5 || p.Longitude() != -1.25 {
		t.Errorf("position %v", p)
	}
}
