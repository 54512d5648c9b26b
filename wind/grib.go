// wind/grib.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wind

import (
	"fmt"
	"os"

	"github.com/mmp/gaggle/log"
	"github.com/mmp/gaggle/math"
	"github.com/mmp/gaggle/util"
	"github.com/mmp/squall"
)

// Grid points farther than this from the sample point are ignored; it
// keeps the search structure small when the forecast file covers a whole
// hemisphere.
const maxSampleDistanceNM = 150

// UVSample is one forecast grid point's wind components.
type UVSample struct {
	Location math.Point2LL
	U, V     float64 // eastward/northward m/s
}

// FromGRIB2 samples the wind at point p and the given isobaric level
// (millibars) from a NOAA GRIB2 forecast file. For gliding heights the
// 850 mb level (roughly 1500 m) is the usual choice. The result blends
// the nearest few grid points, weighted by inverse distance.
func FromGRIB2(path string, p math.Point2LL, levelMB int, lg *log.Logger) (Vector, error) {
	f, err := os.Open(path)
	if err != nil {
		return Vector{}, err
	}
	defer f.Close()

	records, err := squall.Read(f)
	if err != nil {
		return Vector{}, fmt.Errorf("%s: failed to parse GRIB2 file: %w", path, err)
	}
	lg.Debugf("%s: parsed %d GRIB2 records", path, len(records))

	level := fmt.Sprintf("%d mb", levelMB)
	nmPerLongitude := math.NMPerLongitudeAt(p)

	// UGRD and VGRD come as separate records over the same grid; join
	// them up by grid point location.
	uv := make(map[math.Point2LL]*UVSample)
	sampleAt := func(pt math.Point2LL) *UVSample {
		s, ok := uv[pt]
		if !ok {
			s = &UVSample{Location: pt}
			uv[pt] = s
		}
		return s
	}

	matched := 0
	for _, record := range records {
		shortName := record.Parameter.ShortName()
		if (shortName != "UGRD" && shortName != "VGRD") || record.Level != level {
			continue
		}
		matched++

		for i := range record.NumPoints {
			value := record.Data[i]
			if value > 9e20 {
				// Missing value
				continue
			}

			lon := float64(record.Longitudes[i])
			if lon > 180 {
				lon -= 360
			}
			pt := math.Point2LL{lon, float64(record.Latitudes[i])}

			if math.NMDistance2LLFast(p, pt, nmPerLongitude) > maxSampleDistanceNM {
				continue
			}

			if shortName == "UGRD" {
				sampleAt(pt).U = float64(value)
			} else {
				sampleAt(pt).V = float64(value)
			}
		}
	}
	if matched == 0 {
		return Vector{}, fmt.Errorf("%s: no UGRD/VGRD records at %s", path, level)
	}

	samples := make([]UVSample, 0, len(uv))
	for _, s := range uv {
		samples = append(samples, *s)
	}
	lg.Debugf("%s: %d grid points within %d nm at %s", path, len(samples), maxSampleDistanceNM, level)

	return SampleUV(samples, p)
}

// SampleUV estimates the wind at p from forecast grid samples by
// inverse-distance weighting the three nearest.
func SampleUV(samples []UVSample, p math.Point2LL) (Vector, error) {
	if len(samples) == 0 {
		return Vector{}, fmt.Errorf("no wind samples near %s", p)
	}

	tree := math.BuildKDTree(util.MapSlice(samples, func(s UVSample) math.Point2LL { return s.Location }))
	nmPerLongitude := math.NMPerLongitudeAt(p)

	var u, v, sumwt float64
	for _, node := range tree.Nearest(p, 3, nmPerLongitude) {
		s := samples[node.Index]
		d := math.NMDistance2LLFast(p, s.Location, nmPerLongitude)
		wt := 1 / max(0.01, d)

		u += wt * s.U
		v += wt * s.V
		sumwt += wt
	}

	return FromUV(u/sumwt, v/sumwt), nil
}
