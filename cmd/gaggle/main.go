// cmd/gaggle/main.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goforj/godump"
	"github.com/mmp/gaggle/flight"
	"github.com/mmp/gaggle/igc"
	"github.com/mmp/gaggle/log"
	"github.com/mmp/gaggle/math"
	"github.com/mmp/gaggle/prox"
	"github.com/mmp/gaggle/replay"
	"github.com/mmp/gaggle/util"
	"github.com/mmp/gaggle/wind"
)

var (
	logLevel = flag.String("lglevel", "info", "logging level: debug, info, warn, error")
	logDir   = flag.String("logdir", "", "log file directory; empty uses the user config directory")

	windowSpec = flag.String("window", "",
		"analysis window as start/end, each HH:MM:SS UTC on the flight date or RFC 3339 (default: the span covered by every log)")
	tick = flag.Duration("tick", 5*time.Second, "trajectory resampling grid spacing")
	windSpec = flag.String("wind", "",
		"wind to subtract from ground tracks, as direction-from@knots (e.g. 270@8)")
	gribFile  = flag.String("grib", "", "GRIB2 forecast file to sample the wind from instead of -wind")
	gribLevel = flag.Int("level", 700, "pressure level in mb at which -grib samples the wind")
	refSpec   = flag.String("ref", "",
		"reference point as decimal or DMS lat, long, or a saved preset name; name=lat,long saves a preset")
	localNM = flag.Bool("local", false,
		"express trajectory points as east/north NM offsets from the reference point")
	fieldElev = flag.Float64("elevation", 0, "field elevation in meters, for calibrating pressure altitudes")
	geoidHt   = flag.Float64("geoid", 0, "geoid height in meters at the field, for normalizing GNSS altitudes")

	threshold = flag.Float64("threshold", 100,
		"horizontal separation in meters at or below which a proximity event is reported")
	minSpeed = flag.Float64("minspeed", 0,
		"skip ticks where either aircraft's groundspeed is below this many m/s")
	groupEncounters = flag.Bool("encounters", false,
		"group proximity events into per-pair encounters with their closest approach")
	jsonOut = flag.Bool("json", false, "write analysis results as JSON rather than text")

	exportFile = flag.String("export", "", "write the trajectory set to the named .gaggle archive and exit")
	doReplay   = flag.Bool("replay", false, "stream the trajectory set to a flight viewer")
	viewerAddr = flag.String("viewer", "", "viewer address as host:port (default "+replay.DefaultAddress+")")
	radiusNM   = flag.Float64("radius", 0,
		"replay only aircraft within this many NM of the reference point; 0 shows everything")
	replayRate = flag.Float64("rate", 1, "replay speed multiplier")
	modelName  = flag.String("model", "",
		"viewer aircraft model: "+strings.Join(util.SortedMapKeys(replay.Models), ", "))
	viewerSlots = flag.Int("slots", 0, "viewer aircraft slot count (default 20)")

	showInfo  = flag.Bool("info", false, "print a summary of each input file and exit")
	dumpInput = flag.Bool("dump", false, "dump parsed input structures and exit")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: gaggle [options] <flight logs (.igc) or archive (.gaggle)>\n")
	flag.PrintDefaults()
	os.Exit(1)
}

func main() {
	flag.Parse()

	lg := log.New(*logLevel, *logDir)
	defer lg.CatchAndReportCrash()

	config, configErr := LoadOrMakeDefaultConfig(lg)
	if configErr != nil {
		lg.Warnf("config discarded: %v", configErr)
	}

	if flag.NArg() == 0 {
		usage()
	}

	if *showInfo {
		for _, fn := range flag.Args() {
			if err := printInfo(fn, lg); err != nil {
				lg.Errorf("%s: %v", fn, err)
				os.Exit(1)
			}
		}
		return
	}
	if *dumpInput {
		for _, fn := range flag.Args() {
			if err := dumpFile(fn, lg); err != nil {
				lg.Errorf("%s: %v", fn, err)
				os.Exit(1)
			}
		}
		return
	}

	ref, err := resolveRef(*refSpec, config, lg)
	if err != nil {
		lg.Errorf("-ref %q: %v", *refSpec, err)
		os.Exit(1)
	}

	set := loadSet(flag.Args(), ref, lg)

	if *exportFile != "" {
		exportSet(set, *exportFile, lg)
	} else if *doReplay {
		replaySet(set, ref, config, lg)
	} else {
		analyzeSet(set, lg)
	}
}

// loadSet turns the command-line arguments into a trajectory set: either
// a single .gaggle archive loaded as-is, or IGC flight logs built into
// one per the window/wind/tick flags. Exits on error.
func loadSet(args []string, ref math.Point2LL, lg *log.Logger) *flight.Set {
	if len(args) == 1 && strings.HasSuffix(args[0], ".gaggle") {
		f, err := os.Open(args[0])
		if err != nil {
			lg.Errorf("%v", err)
			os.Exit(1)
		}
		defer f.Close()
		set, err := flight.Load(f)
		if err != nil {
			lg.Errorf("%s: %v", args[0], err)
			os.Exit(1)
		}
		return set
	}

	tracks := parseTracks(args, lg)

	opts := flight.BuildOptions{Tick: *tick, Ref: ref}
	if *localNM {
		opts.Frame = flight.FrameLocalNM
	}

	var err error
	if opts.Window, err = resolveWindow(*windowSpec, tracks); err != nil {
		lg.Errorf("-window %q: %v", *windowSpec, err)
		os.Exit(1)
	}
	if opts.Wind, err = resolveWind(ref, tracks, lg); err != nil {
		lg.Errorf("wind: %v", err)
		os.Exit(1)
	}

	set, excluded, err := flight.Build(tracks, opts, lg)
	if err != nil {
		lg.Errorf("%v", err)
		os.Exit(1)
	}
	for _, id := range util.SortedMapKeys(excluded) {
		fmt.Fprintf(os.Stderr, "%s: excluded: %v\n", id, excluded[id])
	}
	return set
}

func parseTracks(args []string, lg *log.Logger) []*igc.Track {
	var tracks []*igc.Track
	for _, fn := range args {
		t, err := igc.ParseFile(fn, lg)
		if err != nil {
			lg.Errorf("%s: %v", fn, err)
			os.Exit(1)
		}
		if d := t.SampleInterval(); d > 4*time.Second {
			fmt.Fprintf(os.Stderr, "%s: fixes are %s apart; interpolated positions will be coarse\n",
				t.ID(), d)
		}
		if *fieldElev != 0 || *geoidHt != 0 {
			var converted bool
			var residual float32
			t, converted, residual = t.NormalizeGeoid(float32(*fieldElev), float32(*geoidHt))
			if converted {
				lg.Infof("%s: GNSS altitudes were ellipsoid referenced; converted to geoid (takeoff residual %.0f m)",
					t.ID(), residual)
			}
			if residual > 10 {
				fmt.Fprintf(os.Stderr, "%s: takeoff altitude is %.0f m off the field elevation; check -elevation\n",
					t.ID(), residual)
			}
		}
		tracks = append(tracks, t)
	}
	return tracks
}

// resolveWindow parses the -window flag, or defaults to the interval
// covered by every log so that all aircraft are present on every tick.
func resolveWindow(spec string, tracks []*igc.Track) (util.TimeInterval, error) {
	if spec == "" {
		spans := util.MapSlice(tracks, func(trk *igc.Track) []util.TimeInterval {
			return []util.TimeInterval{trk.Interval()}
		})
		common := util.MergeIntervals(spans...)
		if len(common) == 0 {
			return util.TimeInterval{}, fmt.Errorf("the logs share no common time span; give -window explicitly")
		}
		return common[0], nil
	}

	start, end, ok := strings.Cut(spec, "/")
	if !ok {
		return util.TimeInterval{}, fmt.Errorf("expected start/end")
	}
	t0, err := parseClock(start, tracks[0].Date)
	if err != nil {
		return util.TimeInterval{}, err
	}
	t1, err := parseClock(end, tracks[0].Date)
	if err != nil {
		return util.TimeInterval{}, err
	}
	w := util.TimeInterval{t0, t1}
	if !w.IsValid() {
		return util.TimeInterval{}, fmt.Errorf("start is not before end")
	}
	return w, nil
}

func parseClock(s string, date time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: neither RFC 3339 nor HH:MM:SS", s)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), t.Second(),
		0, time.UTC), nil
}

func resolveWind(ref math.Point2LL, tracks []*igc.Track, lg *log.Logger) (wind.Vector, error) {
	if *windSpec != "" && *gribFile != "" {
		return wind.Vector{}, fmt.Errorf("-wind and -grib are mutually exclusive")
	}
	if *windSpec != "" {
		return wind.ParseVector(*windSpec)
	}
	if *gribFile != "" {
		// Sample at the first fix if no reference point was given; the
		// grids are coarse enough that anywhere near the task works.
		p := ref
		if p == (math.Point2LL{}) && len(tracks[0].Samples) > 0 {
			s := tracks[0].Samples[0]
			p = math.Point2LL{s.Lon, s.Lat}
		}
		return wind.FromGRIB2(*gribFile, p, *gribLevel, lg)
	}
	return wind.Vector{}, nil
}

// resolveRef turns the -ref flag into a point: "lat, long" directly,
// "name" via the config's saved presets, "name=lat, long" saving one.
func resolveRef(spec string, config *Config, lg *log.Logger) (math.Point2LL, error) {
	if spec == "" {
		return math.Point2LL{}, nil
	}
	if name, coords, ok := strings.Cut(spec, "="); ok {
		p, err := math.ParseLatLong([]byte(coords))
		if err != nil {
			return p, err
		}
		config.RefPresets[name] = coords
		if err := config.Save(lg); err != nil {
			lg.Warnf("config: %v", err)
		}
		return p, nil
	}
	if coords, ok := config.RefPresets[spec]; ok {
		return math.ParseLatLong([]byte(coords))
	}
	return math.ParseLatLong([]byte(spec))
}

func exportSet(set *flight.Set, fn string, lg *log.Logger) {
	f, err := os.Create(fn)
	if err != nil {
		lg.Errorf("%v", err)
		os.Exit(1)
	}
	if err := flight.Save(f, set); err != nil {
		f.Close()
		lg.Errorf("%s: %v", fn, err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		lg.Errorf("%s: %v", fn, err)
		os.Exit(1)
	}

	// Read the archive back and check it against what we meant to
	// write before reporting success.
	f, err = os.Open(fn)
	if err != nil {
		lg.Errorf("%v", err)
		os.Exit(1)
	}
	defer f.Close()
	loaded, err := flight.Load(f)
	if err != nil {
		lg.Errorf("%s: readback: %v", fn, err)
		os.Exit(1)
	}
	var e util.ErrorLogger
	flight.CheckArchive(set, loaded, &e)
	if e.HaveErrors() {
		e.PrintErrors(lg)
		os.Exit(1)
	}

	nticks := 0
	if len(set.Trajectories) > 0 {
		nticks = len(set.Trajectories[0].Points)
	}
	fmt.Printf("%s: %d aircraft, %d ticks at %s\n", fn, len(set.Trajectories), nticks, set.Tick)
}

func analyzeSet(set *flight.Set, lg *log.Logger) {
	events, err := prox.Analyze(set, prox.Options{Threshold: *threshold, MinSpeed: *minSpeed}, lg)
	if err != nil {
		lg.Errorf("%v", err)
		os.Exit(1)
	}

	if *groupEncounters {
		encounters := prox.GroupEncounters(events)
		if *jsonOut {
			writeJSON(encounters, lg)
			return
		}
		for _, en := range encounters {
			fmt.Printf("%s - %s  %s/%s  %d ticks, closest %.0f m horizontal %.0f m vertical at %s\n",
				en.Start.Format("15:04:05"), en.End.Format("15:04:05"), en.A, en.B, en.Ticks,
				en.Closest.Horizontal, en.Closest.Vertical, en.Closest.Time.Format("15:04:05"))
		}
		fmt.Printf("%d encounters (%d event ticks) among %d aircraft, threshold %.0f m\n",
			len(encounters), len(events), len(set.Trajectories), *threshold)
	} else {
		if *jsonOut {
			writeJSON(events, lg)
			return
		}
		for _, ev := range events {
			fmt.Printf("%s  %s/%s  %.0f m horizontal, %.0f m vertical\n",
				ev.Time.Format("15:04:05"), ev.A, ev.B, ev.Horizontal, ev.Vertical)
		}
		fmt.Printf("%d events among %d aircraft, threshold %.0f m\n",
			len(events), len(set.Trajectories), *threshold)
	}
}

func writeJSON(v interface{}, lg *log.Logger) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		lg.Errorf("json: %v", err)
		os.Exit(1)
	}
}

func replaySet(set *flight.Set, ref math.Point2LL, config *Config, lg *log.Logger) {
	addr := *viewerAddr
	if addr == "" {
		addr = config.ViewerAddress
	}
	model := *modelName
	if model == "" {
		model = config.Model
	}

	opts := replay.Options{
		Model:    model,
		RadiusNM: *radiusNM,
		Ref:      ref,
		Rate:     *replayRate,
		Slots:    *viewerSlots,
	}
	s, err := replay.Dial(addr, set, opts, lg)
	if err != nil {
		lg.Errorf("%s: %v", addr, err)
		os.Exit(1)
	}
	defer s.Close()

	// The viewer answered, so these settings are worth remembering.
	config.ViewerAddress = addr
	config.Model = model
	if err := config.Save(lg); err != nil {
		lg.Warnf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "interrupted; releasing viewer aircraft")
		cancel()
	}()

	st := s.Status()
	fmt.Printf("replaying %d frames (%s of flying at %s per tick) to %s at %gx\n",
		st.Frames, set.Window.Duration(), set.Tick, addr, st.Rate)

	if err := s.Run(ctx); err != nil {
		lg.Errorf("replay: %v", err)
		os.Exit(1)
	}
	fmt.Printf("replay finished: %d frames\n", s.Status().Frame)
}

func printInfo(fn string, lg *log.Logger) error {
	if strings.HasSuffix(fn, ".gaggle") {
		f, err := os.Open(fn)
		if err != nil {
			return err
		}
		defer f.Close()
		set, err := flight.Load(f)
		if err != nil {
			return err
		}

		fmt.Printf("%s: %d aircraft, %s to %s UTC at %s per tick, %s frame",
			fn, len(set.Trajectories), set.Window.Start().Format("2006-01-02 15:04:05"),
			set.Window.End().Format("15:04:05"), set.Tick, set.Frame)
		if !set.Wind.IsZero() {
			fmt.Printf(", wind %s", set.Wind)
		}
		fmt.Printf("\n")
		for _, traj := range set.Trajectories {
			fmt.Printf("  %-10s %-24s %-16s %d points\n",
				traj.ID, util.StopShouting(traj.Pilot), traj.GliderType, len(traj.Points))
		}
		return nil
	}

	t, err := igc.ParseFile(fn, lg)
	if err != nil {
		return err
	}
	iv := t.Interval()
	fmt.Printf("%s:\n", fn)
	fmt.Printf("  %s  pilot %q  glider %s %s\n", t.ID(), util.StopShouting(t.Pilot), t.GliderType, t.GliderID)
	fmt.Printf("  %s  %d fixes every %s, %s to %s UTC\n",
		t.Date.Format("2006-01-02"), len(t.Samples), t.SampleInterval(),
		iv.Start().Format("15:04:05"), iv.End().Format("15:04:05"))
	fmt.Printf("  altitude source %s", t.AltSource)
	if t.Skipped > 0 || t.Duplicates > 0 {
		fmt.Printf("  (%d records skipped, %d duplicate fixes)", t.Skipped, t.Duplicates)
	}
	fmt.Printf("\n")

	// A logger dropout mid-flight shows up as a hole in the fix times;
	// flag it since the gap gets interpolated straight across later.
	times := util.MapSlice(t.Samples, func(s igc.Sample) time.Time { return s.Time })
	if spans := util.FindTimeIntervals(times, time.Minute); len(spans) > 1 {
		fmt.Printf("  %d recording gaps:", len(spans)-1)
		for i := range len(spans) - 1 {
			fmt.Printf(" %s at %s", spans[i+1].Start().Sub(spans[i].End()), spans[i].End().Format("15:04:05"))
		}
		fmt.Printf("\n")
	}
	return nil
}

// dumpFile pretty-prints parsed inputs for debugging, truncating the
// bulky per-fix arrays after the first few entries.
func dumpFile(fn string, lg *log.Logger) error {
	const keep = 4

	if strings.HasSuffix(fn, ".gaggle") {
		f, err := os.Open(fn)
		if err != nil {
			return err
		}
		defer f.Close()
		set, err := flight.Load(f)
		if err != nil {
			return err
		}

		fmt.Println(fn + ":")
		hdr := *set
		hdr.Trajectories = nil
		godump.Dump(hdr)
		for _, traj := range set.Trajectories {
			td := *traj
			if len(td.Points) > keep {
				td.Points = td.Points[:keep]
			}
			godump.Dump(td)
			if n := len(traj.Points) - keep; n > 0 {
				fmt.Printf("... %d more points\n", n)
			}
		}
		return nil
	}

	t, err := igc.ParseFile(fn, lg)
	if err != nil {
		return err
	}
	fmt.Println(fn + ":")
	td := *t
	if len(td.Samples) > keep {
		td.Samples = td.Samples[:keep]
	}
	godump.Dump(td)
	if n := len(t.Samples) - keep; n > 0 {
		fmt.Printf("... %d more fixes\n", n)
	}
	return nil
}
