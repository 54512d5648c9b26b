// replay/replay.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package replay paces a trajectory set out to an external 3D viewer in
// wall-clock time, one property update batch per grid tick per visible
// aircraft.
package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/brunoga/deep"
	"github.com/mmp/gaggle/flight"
	"github.com/mmp/gaggle/log"
	"github.com/mmp/gaggle/math"
	"github.com/shirou/gopsutil/v3/cpu"
)

// ErrConnectionLost indicates the viewer link failed mid-replay. The
// driver stops immediately rather than let the viewer drift out of sync
// with what it thinks it has sent; the operator restarts the session.
var ErrConnectionLost = errors.New("viewer connection lost")

const (
	DefaultAddress = "localhost:5124"
	DefaultSlots   = 20

	commandTimeout = 5 * time.Second
	pollInterval   = 50 * time.Millisecond
	statsInterval  = 30 * time.Second
)

// Options configure a replay session.
type Options struct {
	// Model is the viewer model name for every aircraft; empty picks
	// the default.
	Model string
	// RadiusNM only shows aircraft within this many nautical miles of
	// the reference point; zero shows everything.
	RadiusNM float64
	// Ref overrides the set's reference point for the radius filter.
	Ref math.Point2LL
	// Rate is the playback rate multiplier; zero means real time.
	Rate float64
	// Slots caps how many aircraft the viewer shows at once; zero uses
	// DefaultSlots.
	Slots int
}

// Session owns the viewer connection and its slot pool for one replay.
// Sessions are single-shot: Run plays the frame sequence through once
// and returns.
type Session struct {
	conn net.Conn
	r    *bufio.Reader
	lg   *log.Logger

	frames         []flight.Frame
	tick           time.Duration
	model          Model
	ref            math.Point2LL
	radius         float64
	nmPerLongitude float64

	// Shortened by tests; Run paces against these.
	poll  time.Duration
	stats time.Duration

	mu         sync.Mutex
	rate       float64
	paused     bool
	next       int // index of the next frame to send
	lastUpdate time.Time
	slop       time.Duration
	slots      []string // slot index -> aircraft id, "" when free
	assigned   map[string]int
	sent       int64
	dropped    int64
	dead       error
}

// Status is a point-in-time snapshot of a running session.
type Status struct {
	Frame  int // frames sent so far
	Frames int
	Time   time.Time // replay time of the frame about to be sent
	Rate   float64
	Paused bool

	Sent     int64 // protocol commands issued
	Dropped  int64 // aircraft-ticks skipped for want of a free slot
	Assigned map[string]int
}

// NewSession wraps an established viewer connection. The caller keeps
// ownership of conn on error.
func NewSession(conn net.Conn, set *flight.Set, opts Options, lg *log.Logger) (*Session, error) {
	frames, err := flight.Frames(set)
	if err != nil {
		return nil, err
	}
	model, err := LookupModel(opts.Model)
	if err != nil {
		return nil, err
	}

	rate := opts.Rate
	if rate == 0 {
		rate = 1
	}
	if err := checkRate(rate); err != nil {
		return nil, err
	}
	nslots := opts.Slots
	if nslots == 0 {
		nslots = DefaultSlots
	}
	if nslots < 0 {
		return nil, fmt.Errorf("slot count %d must be positive", nslots)
	}
	ref := opts.Ref
	if ref.IsZero() {
		ref = set.Ref
	}

	return &Session{
		conn:           conn,
		r:              bufio.NewReader(conn),
		lg:             lg,
		frames:         frames,
		tick:           set.Tick,
		model:          model,
		ref:            ref,
		radius:         opts.RadiusNM,
		nmPerLongitude: set.NMPerLongitude,
		poll:           pollInterval,
		stats:          statsInterval,
		rate:           rate,
		slots:          make([]string, nslots),
		assigned:       make(map[string]int),
	}, nil
}

// Dial connects to a viewer and wraps the connection in a Session.
func Dial(address string, set *flight.Set, opts Options, lg *log.Logger) (*Session, error) {
	if address == "" {
		address = DefaultAddress
	}
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", address, err)
	}
	s, err := NewSession(conn, set, opts, lg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func checkRate(rate float64) error {
	if rate <= 0 || rate > 50 {
		return fmt.Errorf("replay rate %g out of range (0, 50]", rate)
	}
	return nil
}

// Run plays the frame sequence to the viewer, pacing so that one tick
// interval of replay time takes tick/rate of wall-clock time. It
// returns nil once the last frame has been sent, ctx.Err if canceled,
// or an ErrConnectionLost-wrapped error the moment the viewer link
// fails.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.lastUpdate = time.Now()
	nframes := len(s.frames)
	s.mu.Unlock()

	s.lg.Infof("replay: %d frames at %v ticks to %v", nframes, s.tick, s.conn.RemoteAddr())

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	lastStats := time.Now()

	for {
		select {
		case <-ctx.Done():
			s.releaseAll()
			return ctx.Err()

		case <-ticker.C:
			done, err := s.advance()
			if err != nil {
				return err
			}
			if done {
				if err := s.releaseAll(); err != nil {
					return err
				}
				s.lg.Infof("replay: finished after %d frames", nframes)
				return nil
			}

			if time.Since(lastStats) >= s.stats {
				s.logStats()
				lastStats = time.Now()
			}
		}
	}
}

// advance figures out how much replay time has passed since the last
// poll, wall clock scaled by the rate plus any remainder carried from
// last time, and sends that many whole frames.
func (s *Session) advance() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.frames) {
		return true, nil
	}
	if s.paused {
		s.lastUpdate = time.Now()
		return false, nil
	}

	elapsed := time.Since(s.lastUpdate)
	elapsed = time.Duration(s.rate * float64(elapsed))
	s.lastUpdate = time.Now()
	elapsed += s.slop

	n := int(elapsed / s.tick)
	s.slop = elapsed - time.Duration(n)*s.tick
	if n > 10 {
		s.lg.Warnf("replay fell %d ticks behind wall clock", n)
	}

	for range n {
		if s.next >= len(s.frames) {
			break
		}
		if err := s.emitFrame(s.frames[s.next]); err != nil {
			return false, err
		}
		s.next++
	}
	return s.next >= len(s.frames), nil
}

// emitFrame sends one tick's updates: slot churn first for aircraft
// crossing the radius, then position and orientation for everything
// visible. All of a frame's writes complete before the next pacing
// delay starts, so the viewer never sees a half-updated tick.
func (s *Session) emitFrame(fr flight.Frame) error {
	for _, fa := range fr.Aircraft {
		inRange := s.radius <= 0 ||
			math.NMDistance2LLFast(fa.Position(), s.ref, s.nmPerLongitude) <= s.radius

		slot, have := s.assigned[fa.ID]
		if !inRange {
			if have {
				if err := s.release(slot, fa.ID); err != nil {
					return err
				}
			}
			continue
		}

		if !have {
			var ok bool
			if slot, ok = s.acquire(fa.ID); !ok {
				s.dropped++
				continue
			}
			if err := s.bind(slot, fa.ID); err != nil {
				return err
			}
		}

		if err := s.position(slot, fa); err != nil {
			return err
		}
	}
	return nil
}

// acquire hands out the lowest free slot.
func (s *Session) acquire(id string) (int, bool) {
	for i, occupant := range s.slots {
		if occupant == "" {
			s.slots[i] = id
			s.assigned[id] = i
			return i, true
		}
	}
	return 0, false
}

func (s *Session) bind(slot int, id string) error {
	if err := s.send(slotProperty(slot, "path"), s.model.Path); err != nil {
		return err
	}
	return s.send(slotProperty(slot, "callsign"), id)
}

func (s *Session) release(slot int, id string) error {
	delete(s.assigned, id)
	s.slots[slot] = ""
	return s.send(slotProperty(slot, "path"), "")
}

func (s *Session) position(slot int, fa flight.FrameAircraft) error {
	for _, p := range []struct{ prop, value string }{
		{"position/latitude-deg", fmt.Sprintf("%.7f", fa.LatDeg())},
		{"position/longitude-deg", fmt.Sprintf("%.7f", fa.LonDeg())},
		{"position/altitude-ft", fmt.Sprintf("%.1f", fa.AltFeet())},
		{"orientation/true-heading-deg", fmt.Sprintf("%.2f", fa.HeadingDeg())},
		{"orientation/pitch-deg", fmt.Sprintf("%.2f", fa.PitchDeg())},
		{"orientation/roll-deg", fmt.Sprintf("%.2f", fa.BankDeg())},
	} {
		if err := s.send(slotProperty(slot, p.prop), p.value); err != nil {
			return err
		}
	}
	return nil
}

// send issues one command and waits for its response. The first failure
// latches; everything after reports the same error without touching the
// connection again.
func (s *Session) send(path, value string) error {
	if s.dead != nil {
		return s.dead
	}

	s.conn.SetDeadline(time.Now().Add(commandTimeout))
	if _, err := fmt.Fprintf(s.conn, "set %s %s\n", path, value); err != nil {
		s.dead = fmt.Errorf("%v: %w", err, ErrConnectionLost)
		return s.dead
	}

	line, err := s.r.ReadString('\n')
	if err != nil {
		s.dead = fmt.Errorf("%v: %w", err, ErrConnectionLost)
		return s.dead
	}
	if err := parseResponse(line); err != nil {
		s.dead = fmt.Errorf("set %s: %v: %w", path, err, ErrConnectionLost)
		return s.dead
	}

	s.sent++
	return nil
}

// releaseAll frees every bound slot, leaving the viewer empty.
func (s *Session) releaseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for slot, id := range s.slots {
		if id != "" {
			if err := s.release(slot, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetRate changes the playback rate mid-replay.
func (s *Session) SetRate(rate float64) error {
	if err := checkRate(rate); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = rate
	s.lg.Infof("replay rate set to %g", rate)
	return nil
}

// TogglePause pauses or resumes playback. Wall-clock time spent paused
// is ignored rather than caught up on resume.
func (s *Session) TogglePause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paused = !s.paused
	s.lastUpdate = time.Now()
	s.slop = 0
}

// Status returns a snapshot safe to hold while the session runs.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Frame:    s.next,
		Frames:   len(s.frames),
		Rate:     s.rate,
		Paused:   s.paused,
		Sent:     s.sent,
		Dropped:  s.dropped,
		Assigned: deep.MustCopy(s.assigned),
	}
	if s.next < len(s.frames) {
		st.Time = s.frames[s.next].Time
	} else if len(s.frames) > 0 {
		st.Time = s.frames[len(s.frames)-1].Time
	}
	return st
}

func (s *Session) logStats() {
	st := s.Status()

	var load float64
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		load = pcts[0]
	}
	s.lg.Infof("replay: frame %d/%d, %d active, %d commands, %d dropped, cpu %.0f%%",
		st.Frame, st.Frames, len(st.Assigned), st.Sent, st.Dropped, load)
}

// Close shuts the viewer connection down.
func (s *Session) Close() error {
	return s.conn.Close()
}
