// util/time_test.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"testing"
	"time"
)

func TestTimeIntervalMethods(t *testing.T) {
	start := time.Date(2025, 7, 12, 10, 0, 0, 0, time.UTC)
	end := time.Date(2025, 7, 12, 12, 0, 0, 0, time.UTC)
	interval := TimeInterval{start, end}

	if interval.Start() != start {
		t.Errorf("Expected start time %v, got %v", start, interval.Start())
	}
	if interval.End() != end {
		t.Errorf("Expected end time %v, got %v", end, interval.End())
	}
	if interval.Duration() != 2*time.Hour {
		t.Errorf("Expected duration %v, got %v", 2*time.Hour, interval.Duration())
	}
	if !interval.IsValid() {
		t.Errorf("Expected interval to be valid")
	}
	if (TimeInterval{end, start}).IsValid() {
		t.Errorf("Expected reversed interval to be invalid")
	}
}

func TestTimeIntervalContains(t *testing.T) {
	start := time.Date(2025, 7, 12, 10, 0, 0, 0, time.UTC)
	end := time.Date(2025, 7, 12, 12, 0, 0, 0, time.UTC)
	interval := TimeInterval{start, end}

	tests := []struct {
		name     string
		t        time.Time
		expected bool
	}{
		{"within", start.Add(time.Hour), true},
		{"at start", start, true},
		{"at end", end, true},
		{"before", start.Add(-time.Second), false},
		{"after", end.Add(time.Second), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if interval.Contains(tc.t) != tc.expected {
				t.Errorf("Contains(%v) = %v, expected %v", tc.t, interval.Contains(tc.t), tc.expected)
			}
		})
	}
}

func TestTimeIntervalOverlap(t *testing.T) {
	base := time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC)
	hour := func(h int) time.Time { return base.Add(time.Duration(h) * time.Hour) }

	tests := []struct {
		name     string
		a, b     TimeInterval
		expected TimeInterval
		ok       bool
	}{
		{"partial", TimeInterval{hour(0), hour(2)}, TimeInterval{hour(1), hour(3)},
			TimeInterval{hour(1), hour(2)}, true},
		{"contained", TimeInterval{hour(0), hour(4)}, TimeInterval{hour(1), hour(2)},
			TimeInterval{hour(1), hour(2)}, true},
		{"touching", TimeInterval{hour(0), hour(1)}, TimeInterval{hour(1), hour(2)},
			TimeInterval{hour(1), hour(1)}, true},
		{"disjoint", TimeInterval{hour(0), hour(1)}, TimeInterval{hour(2), hour(3)},
			TimeInterval{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.a.Overlap(tc.b)
			if ok != tc.ok || (ok && got != tc.expected) {
				t.Errorf("Overlap = %v, %v; expected %v, %v", got, ok, tc.expected, tc.ok)
			}
			// Symmetric
			got2, ok2 := tc.b.Overlap(tc.a)
			if ok2 != ok || got2 != got {
				t.Errorf("Overlap asymmetric: %v, %v vs %v, %v", got, ok, got2, ok2)
			}
		})
	}
}

func TestFindTimeIntervals(t *testing.T) {
	baseTime := time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC)
	times := []time.Time{
		baseTime,
		baseTime.Add(30 * time.Minute),
		baseTime.Add(1 * time.Hour),
		baseTime.Add(3 * time.Hour), // gap > maxGap
		baseTime.Add(4 * time.Hour),
	}

	intervals := FindTimeIntervals(times, time.Hour)

	expected := []TimeInterval{
		{baseTime, baseTime.Add(1 * time.Hour)},
		{baseTime.Add(3 * time.Hour), baseTime.Add(4 * time.Hour)},
	}

	if len(intervals) != len(expected) {
		t.Fatalf("Expected %d intervals, got %d", len(expected), len(intervals))
	}
	for i, interval := range intervals {
		if interval != expected[i] {
			t.Errorf("interval %d: got %v-%v, expected %v-%v",
				i, interval.Start(), interval.End(), expected[i].Start(), expected[i].End())
		}
	}

	if got := FindTimeIntervals(nil, time.Hour); got != nil {
		t.Errorf("expected nil for no times, got %v", got)
	}
}

func TestIntersectIntervals(t *testing.T) {
	baseTime := time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC)
	hour := func(h int) time.Time { return baseTime.Add(time.Duration(h) * time.Hour) }

	a := []TimeInterval{
		{hour(0), hour(2)},
		{hour(4), hour(6)},
	}
	b := []TimeInterval{
		{hour(1), hour(3)},
		{hour(5), hour(7)},
	}

	result := IntersectIntervals(a, b)
	expected := []TimeInterval{
		{hour(1), hour(2)},
		{hour(5), hour(6)},
	}

	if len(result) != len(expected) {
		t.Fatalf("Expected %d intervals, got %d", len(expected), len(result))
	}
	for i := range result {
		if result[i] != expected[i] {
			t.Errorf("interval %d: got %v, expected %v", i, result[i], expected[i])
		}
	}
}

func TestMergeIntervals(t *testing.T) {
	baseTime := time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC)
	hour := func(h int) time.Time { return baseTime.Add(time.Duration(h) * time.Hour) }

	// Three aircraft with different recording spans; the common window is
	// their intersection.
	result := MergeIntervals(
		[]TimeInterval{{hour(0), hour(10)}},
		[]TimeInterval{{hour(2), hour(8)}},
		[]TimeInterval{{hour(3), hour(12)}},
	)
	if len(result) != 1 || result[0] != (TimeInterval{hour(3), hour(8)}) {
		t.Errorf("got %v, expected single interval 3h-8h", result)
	}

	if result := MergeIntervals(
		[]TimeInterval{{hour(0), hour(1)}},
		[]TimeInterval{{hour(2), hour(3)}},
	); result != nil {
		t.Errorf("expected nil for disjoint sets, got %v", result)
	}
}
