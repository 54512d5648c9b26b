// igc/parser.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package igc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mmp/gaggle/log"
	"github.com/mmp/gaggle/util"
)

// ErrParse indicates a flight log whose overall structure couldn't be
// understood: a missing or malformed header, or no usable fixes at all.
// Individually malformed fixes don't trigger it; those are skipped and
// counted.
var ErrParse = errors.New("unrecognized flight log structure")

// ParseFile reads the IGC flight log at the given path.
func ParseFile(path string, lg *log.Logger) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f, filepath.Base(path), lg)
}

// Parse reads one IGC flight log from r; name is used in diagnostics.
// The format is line oriented: an A record with the recorder id, H
// header records (date, pilot, glider, competition id), then B records
// carrying one timestamped fix each. B record timestamps are seconds
// since UTC midnight of the header date; a flight that crosses midnight
// shows up as the time of day jumping backwards and rolls the date
// forward. Some recorders emit runs of fixes with repeated timestamps;
// only the first of each run is kept.
func Parse(r io.Reader, name string, lg *log.Logger) (*Track, error) {
	t := &Track{}

	sc := bufio.NewScanner(r)
	lineno := 0
	sawA := false
	firstFix := true
	lastTod := 0
	var dayOffset time.Duration

	for sc.Scan() {
		lineno++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}

		if !sawA {
			if line[0] != 'A' || len(line) < 7 {
				return nil, fmt.Errorf("%s: missing A record: %w", name, ErrParse)
			}
			t.LoggerID = line[1:7]
			sawA = true
			continue
		}

		switch line[0] {
		case 'H':
			if err := t.parseHeader(line); err != nil {
				return nil, fmt.Errorf("%s line %d: %v: %w", name, lineno, err, ErrParse)
			}

		case 'B':
			if t.Date.IsZero() {
				return nil, fmt.Errorf("%s: B record before HFDTE header: %w", name, ErrParse)
			}

			fix, void, err := parseB(line)
			if err != nil {
				t.Skipped++
				lg.Warnf("%s line %d: skipping fix: %v", name, lineno, err)
				continue
			}
			if void {
				// No GPS lock; normal at the start of a log.
				t.Skipped++
				continue
			}

			if !firstFix {
				if fix.tod == lastTod {
					t.Duplicates++
					continue
				}
				if fix.tod < lastTod {
					if lastTod-fix.tod > 12*3600 {
						// Crossed midnight.
						dayOffset += 24 * time.Hour
					} else {
						t.Skipped++
						lg.Warnf("%s line %d: skipping fix: time went backwards", name, lineno)
						continue
					}
				}
			}
			firstFix = false
			lastTod = fix.tod

			t.Samples = append(t.Samples, Sample{
				Time:    t.Date.Add(dayOffset + time.Duration(fix.tod)*time.Second),
				Lat:     fix.lat,
				Lon:     fix.lon,
				AltBaro: fix.altBaro,
				AltGNSS: fix.altGNSS,
			})

		default:
			// I, C, L, G, ... records carry nothing we need.
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if len(t.Samples) == 0 {
		return nil, fmt.Errorf("%s: no usable position records: %w", name, ErrParse)
	}

	var haveBaro, haveGNSS bool
	for _, s := range t.Samples {
		haveBaro = haveBaro || s.AltBaro != 0
		haveGNSS = haveGNSS || s.AltGNSS != 0
	}
	switch {
	case haveBaro && haveGNSS:
		t.AltSource = AltitudePressureCalibrated
	case haveBaro:
		t.AltSource = AltitudePressure
	default:
		t.AltSource = AltitudeGNSS
	}

	lg.Debugf("%s: %s: %d fixes, %d skipped, %d duplicate, altitude source %s",
		name, t.ID(), len(t.Samples), t.Skipped, t.Duplicates, t.AltSource)

	return t, nil
}

// parseHeader handles one H record. The three letters after the source
// code name the field; the value follows the colon if there is one and
// the field name otherwise.
func (t *Track) parseHeader(line string) error {
	if len(line) < 5 {
		return nil
	}
	value := line[5:]
	if idx := strings.IndexByte(line, ':'); idx >= 0 {
		value = strings.TrimSpace(line[idx+1:])
	}

	switch line[2:5] {
	case "DTE":
		if len(value) < 6 || !util.IsAllNumbers(value[:6]) {
			return fmt.Errorf("malformed date header %q", line)
		}
		dd, _ := strconv.Atoi(value[0:2])
		mm, _ := strconv.Atoi(value[2:4])
		yy, _ := strconv.Atoi(value[4:6])
		year := 2000 + yy
		if yy >= 80 {
			year = 1900 + yy
		}
		t.Date = time.Date(year, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
		if t.Date.Day() != dd || t.Date.Month() != time.Month(mm) {
			return fmt.Errorf("invalid date in header %q", line)
		}
	case "PLT":
		t.Pilot = value
	case "GTY":
		t.GliderType = value
	case "GID":
		t.GliderID = value
	case "CID":
		t.CompID = value
	case "CCL":
		t.CompClass = value
	}
	return nil
}

type bFix struct {
	tod              int // seconds since midnight UTC
	lat, lon         float64
	altBaro, altGNSS float32
}

// parseB decodes the fixed-layout base fields of a B record:
// B HHMMSS DDMMmmmN DDDMMmmmE V PPPPP GGGGG, where latitude minutes are
// recorded in thousandths, V is the fix validity (A means 3D lock), and
// the altitudes are meters of pressure and GNSS altitude respectively.
// Extension fields declared by an I record may follow; they're ignored.
// The second return value is true for a void fix.
func parseB(line string) (bFix, bool, error) {
	var fix bFix
	if len(line) < 35 {
		return fix, false, fmt.Errorf("short B record")
	}

	switch line[24] {
	case 'A':
		// 3D fix
	case 'V':
		return fix, true, nil
	default:
		return fix, false, fmt.Errorf("bad fix validity %q", line[24])
	}

	var err error
	num := func(s string) int {
		v, nerr := strconv.Atoi(s)
		if nerr != nil && err == nil {
			err = fmt.Errorf("non-numeric field %q", s)
		}
		return v
	}

	h, m, s := num(line[1:3]), num(line[3:5]), num(line[5:7])
	latDeg, latMin := num(line[7:9]), num(line[9:14])
	lonDeg, lonMin := num(line[15:18]), num(line[18:23])
	altBaro, altGNSS := num(line[25:30]), num(line[30:35])
	if err != nil {
		return fix, false, err
	}

	if h > 23 || m > 59 || s > 59 {
		return fix, false, fmt.Errorf("bad time %q", line[1:7])
	}
	fix.tod = 3600*h + 60*m + s

	fix.lat = float64(latDeg) + float64(latMin)/60000
	switch line[14] {
	case 'N':
	case 'S':
		fix.lat = -fix.lat
	default:
		return fix, false, fmt.Errorf("bad latitude hemisphere %q", line[14])
	}
	if fix.lat < -90 || fix.lat > 90 {
		return fix, false, fmt.Errorf("latitude out of range %q", line[7:15])
	}

	fix.lon = float64(lonDeg) + float64(lonMin)/60000
	switch line[23] {
	case 'E':
	case 'W':
		fix.lon = -fix.lon
	default:
		return fix, false, fmt.Errorf("bad longitude hemisphere %q", line[23])
	}
	if fix.lon < -180 || fix.lon > 180 {
		return fix, false, fmt.Errorf("longitude out of range %q", line[15:24])
	}

	fix.altBaro = float32(altBaro)
	fix.altGNSS = float32(altGNSS)

	return fix, false, nil
}
