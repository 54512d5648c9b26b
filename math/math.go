// math/math.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import gomath "math"

// Thin wrappers around the stdlib transcendentals so that callers don't
// need a second math import alongside this package.

func Sin(x float64) float64   { return gomath.Sin(x) }
func Cos(x float64) float64   { return gomath.Cos(x) }
func Atan(x float64) float64  { return gomath.Atan(x) }
func Floor(x float64) float64 { return gomath.Floor(x) }
func Round(x float64) float64 { return gomath.Round(x) }

func Atan2(y, x float64) float64 { return gomath.Atan2(y, x) }
