// wind/wind_test.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wind

import (
	gomath "math"
	"testing"
	"time"

	"github.com/mmp/gaggle/math"
)

func TestFromUV(t *testing.T) {
	tests := []struct {
		name     string
		u, v     float64
		dir, spd float64
	}{
		{"from north", 0, -5, 0, 5},
		{"from east", -5, 0, 90, 5},
		{"from south", 0, 5, 180, 5},
		{"from west", 5, 0, 270, 5},
		{"from northeast", -3, -4, 270 - math.Degrees(math.Atan2(-4, -3)) - 360, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := FromUV(tc.u, tc.v)
			if gomath.Abs(float64(w.DirectionFrom)-tc.dir) > 0.01 && gomath.Abs(float64(w.DirectionFrom)-tc.dir-360) > 0.01 {
				t.Errorf("direction %v, expected %v", w.DirectionFrom, tc.dir)
			}
			if gomath.Abs(float64(w.Speed)-tc.spd) > 0.01 {
				t.Errorf("speed %v, expected %v", w.Speed, tc.spd)
			}
		})
	}
}

func TestUVRoundTrip(t *testing.T) {
	for _, uv := range [][2]float64{{0, -5}, {-3, -4}, {2.5, 7.1}, {-8, 0.5}} {
		w := FromUV(uv[0], uv[1])
		u, v := w.UV()
		if gomath.Abs(u-uv[0]) > 1e-4 || gomath.Abs(v-uv[1]) > 1e-4 {
			t.Errorf("round trip %v gave (%v, %v)", uv, u, v)
		}
	}
}

func TestFromKnots(t *testing.T) {
	w := FromKnots(270, 10)
	if gomath.Abs(float64(w.Speed)-5.1444444) > 1e-4 {
		t.Errorf("10 kts = %v m/s", w.Speed)
	}
	if w.DirectionFrom != 270 {
		t.Errorf("direction %v", w.DirectionFrom)
	}
}

func TestParseVector(t *testing.T) {
	w, err := ParseVector("270@8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.DirectionFrom != 270 || gomath.Abs(float64(w.Speed)-math.KnotsToMPS(8)) > 1e-6 {
		t.Errorf("parsed %+v", w)
	}

	for _, bad := range []string{"270", "abc@5", "270@xyz", "270@-1", "400@5", ""} {
		if _, err := ParseVector(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestDisplacement(t *testing.T) {
	// 10 m/s from the north for 185.2 s carries the air mass one
	// nautical mile south.
	w := Vector{Speed: 10, DirectionFrom: 0}
	d := w.DisplacementNM(1852 * time.Second / 10)
	if gomath.Abs(d[0]) > 1e-6 || gomath.Abs(d[1]+1) > 1e-6 {
		t.Errorf("displacement %v, expected [0, -1]", d)
	}

	// From the west: due east.
	w = Vector{Speed: 10, DirectionFrom: 270}
	d = w.DisplacementNM(1852 * time.Second / 10)
	if gomath.Abs(d[0]-1) > 1e-6 || gomath.Abs(d[1]) > 1e-6 {
		t.Errorf("displacement %v, expected [1, 0]", d)
	}

	// Displacement grows linearly with elapsed time.
	d1, d2 := w.DisplacementNM(time.Minute), w.DisplacementNM(2*time.Minute)
	if gomath.Abs(d2[0]-2*d1[0]) > 1e-9 {
		t.Errorf("displacement not linear in time: %v vs %v", d1, d2)
	}

	if d := (Vector{}).DisplacementNM(time.Hour); d != ([2]float64{}) {
		t.Errorf("calm wind displaced %v", d)
	}
}

func TestNegated(t *testing.T) {
	w := Vector{Speed: 7, DirectionFrom: 45}
	n := w.Negated()
	if n.DirectionFrom != 225 || n.Speed != 7 {
		t.Errorf("negated %+v", n)
	}

	sum := math.Add2(w.DisplacementNM(5*time.Minute), n.DisplacementNM(5*time.Minute))
	if math.Length2(sum) > 1e-9 {
		t.Errorf("negated wind doesn't cancel: residual %v", sum)
	}
}

func TestVectorString(t *testing.T) {
	if s := (Vector{}).String(); s != "calm" {
		t.Errorf("zero wind: %q", s)
	}
	if s := (Vector{Speed: 8, DirectionFrom: 270}).String(); s != "8.0 m/s from 270 (W)" {
		t.Errorf("got %q", s)
	}
}

func TestSampleUV(t *testing.T) {
	p := math.Point2LL{0, 0}

	t.Run("uniform field", func(t *testing.T) {
		samples := []UVSample{
			{Location: math.Point2LL{0.1, 0}, U: 2, V: -3},
			{Location: math.Point2LL{-0.1, 0}, U: 2, V: -3},
			{Location: math.Point2LL{0, 0.1}, U: 2, V: -3},
		}
		w, err := SampleUV(samples, p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		u, v := w.UV()
		if gomath.Abs(u-2) > 1e-4 || gomath.Abs(v+3) > 1e-4 {
			t.Errorf("uniform field sampled as (%v, %v)", u, v)
		}
	})

	t.Run("inverse distance weights", func(t *testing.T) {
		// 1 nm east with u=0 and 3 nm east with u=4: weights 1 and
		// 1/3 blend to u=1.
		samples := []UVSample{
			{Location: math.Point2LL{1.0 / 60, 0}, U: 0},
			{Location: math.Point2LL{3.0 / 60, 0}, U: 4},
		}
		w, err := SampleUV(samples, p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		u, _ := w.UV()
		if gomath.Abs(u-1) > 1e-3 {
			t.Errorf("blended u = %v, expected 1", u)
		}
	})

	t.Run("only nearest three", func(t *testing.T) {
		samples := []UVSample{
			{Location: math.Point2LL{1.0 / 60, 0}, U: 1},
			{Location: math.Point2LL{2.0 / 60, 0}, U: 1},
			{Location: math.Point2LL{3.0 / 60, 0}, U: 1},
			{Location: math.Point2LL{50.0 / 60, 0}, U: 1000},
		}
		w, err := SampleUV(samples, p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		u, _ := w.UV()
		if gomath.Abs(u-1) > 1e-3 {
			t.Errorf("distant outlier leaked into the blend: u = %v", u)
		}
	})

	t.Run("no samples", func(t *testing.T) {
		if _, err := SampleUV(nil, p); err == nil {
			t.Errorf("expected error for empty sample set")
		}
	})
}
