// math/math_test.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	gomath "math"
	"testing"
)

func TestVectorBasics(t *testing.T) {
	a := [2]float64{1, 2}
	b := [2]float64{3, -1}

	if v := Add2(a, b); v != [2]float64{4, 1} {
		t.Errorf("Add2 gave %v", v)
	}
	if v := Sub2(a, b); v != [2]float64{-2, 3} {
		t.Errorf("Sub2 gave %v", v)
	}
	if v := Scale2(a, 3); v != [2]float64{3, 6} {
		t.Errorf("Scale2 gave %v", v)
	}
	if v := Mid2(a, b); v != [2]float64{2, 0.5} {
		t.Errorf("Mid2 gave %v", v)
	}
	if d := Dot(a, b); d != 1 {
		t.Errorf("Dot gave %f", d)
	}
	if l := Length2([2]float64{3, 4}); l != 5 {
		t.Errorf("Length2 gave %f", l)
	}
	if d := Distance2([2]float64{1, 1}, [2]float64{4, 5}); d != 5 {
		t.Errorf("Distance2 gave %f", d)
	}
}

func TestLerp2(t *testing.T) {
	a := [2]float64{0, 10}
	b := [2]float64{10, 0}

	tests := []struct {
		x        float64
		expected [2]float64
	}{
		{0, a},
		{1, b},
		{0.5, [2]float64{5, 5}},
		{0.25, [2]float64{2.5, 7.5}},
	}
	for _, tc := range tests {
		if v := Lerp2(tc.x, a, b); v != tc.expected {
			t.Errorf("Lerp2(%f) = %v, expected %v", tc.x, v, tc.expected)
		}
	}
}

func TestNormalize2(t *testing.T) {
	if v := Normalize2([2]float64{0, 0}); v != [2]float64{0, 0} {
		t.Errorf("Normalize2 of zero vector gave %v", v)
	}
	v := Normalize2([2]float64{3, 4})
	if gomath.Abs(Length2(v)-1) > 1e-12 {
		t.Errorf("Normalize2 gave non-unit vector %v", v)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		x, low, high, expected float64
	}{
		{5, 0, 10, 5},
		{-5, 0, 10, 0},
		{15, 0, 10, 10},
		{0, 0, 10, 0},
		{10, 0, 10, 10},
	}
	for _, tc := range tests {
		if v := Clamp(tc.x, tc.low, tc.high); v != tc.expected {
			t.Errorf("Clamp(%f, %f, %f) = %f, expected %f", tc.x, tc.low, tc.high, v, tc.expected)
		}
	}
}

func TestSinCos(t *testing.T) {
	for _, x := range []float64{0, 0.5, 1, gomath.Pi / 2, gomath.Pi, 3, -2.5} {
		sc := SinCos(x)
		if gomath.Abs(sc[0]-gomath.Sin(x)) > 1e-12 || gomath.Abs(sc[1]-gomath.Cos(x)) > 1e-12 {
			t.Errorf("SinCos(%f) = %v, expected (%f, %f)", x, sc, gomath.Sin(x), gomath.Cos(x))
		}
	}
}

func TestRadiansDegrees(t *testing.T) {
	for _, d := range []float64{0, 45, 90, 180, 360, -30} {
		if r := Degrees(Radians(d)); gomath.Abs(r-d) > 1e-12 {
			t.Errorf("Degrees(Radians(%f)) = %f", d, r)
		}
	}
}
