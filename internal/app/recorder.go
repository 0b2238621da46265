// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/inertial_recorder/internal/config"
	"github.com/relabs-tech/inertial_recorder/internal/frame"
	"github.com/relabs-tech/inertial_recorder/internal/gps"
	"github.com/relabs-tech/inertial_recorder/internal/imu"
	"github.com/relabs-tech/inertial_recorder/internal/record"
)

const (
	// per-stream inbox depth between the MQTT callbacks and the stream goroutines
	inboxSize = 256

	// how long End waits for records already in the inboxes
	endDrainTimeout = 2 * time.Second
)

// Inbox messages carry the session that was active when they arrived, so a
// record can never land in a later session.
type frameMsg struct {
	s       *record.Session
	ts      float64
	payload []byte
}

type sampleMsg struct {
	s *record.Session
	imu.Sample
}

type fixMsg struct {
	s *record.Session
	gps.Fix
}

// inboxSeq counts messages put into an inbox and messages resolved
// (processed or dropped); in >= out.
type inboxSeq struct {
	in, out atomic.Uint64
}

// ControlCommand is the payload of the control topic.
type ControlCommand struct {
	Action string `json:"action"` // "begin" or "end"
	Name   string `json:"name,omitempty"`
}

// StatusReport is what the status topic, the HTTP API and the websocket publish.
type StatusReport struct {
	record.Status
	Throttle frame.Stats      `json:"throttle"`
	Pairing  imu.PairerStats  `json:"pairing"`
	Fixes    uint64           `json:"fixes"`
	Inbox    map[string]inbox `json:"inbox"`
	Degraded bool             `json:"degraded"`
}

type inbox struct {
	Depth   int    `json:"depth"`
	Dropped uint64 `json:"dropped"`
}

// Recorder wires the three stream processors to one session logger. Each
// stream is consumed by its own goroutine so a slow stream never stalls the
// others.
type Recorder struct {
	Logger    *record.Logger
	Frames    *frame.Throttler
	Inertial  *imu.Pairer
	Locations *gps.Recorder

	frames    chan frameMsg
	samples   chan sampleMsg
	fixes     chan fixMsg
	seq       [3]inboxSeq
	dropped   [3]atomic.Uint64
	malformed atomic.Uint64
	degraded  atomic.Bool

	drainTimeout time.Duration

	wg sync.WaitGroup
}

// NewRecorder builds the logger and stream processors from cfg.
func NewRecorder(cfg *config.Config) (*Recorder, error) {
	r := &Recorder{
		frames:       make(chan frameMsg, inboxSize),
		samples:      make(chan sampleMsg, inboxSize),
		fixes:        make(chan fixMsg, inboxSize),
		drainTimeout: endDrainTimeout,
	}

	opts := cfg.RecordOptions()
	opts.OnError = r.onError
	l, err := record.NewLogger(cfg.RecordRoot, opts)
	if err != nil {
		return nil, err
	}
	r.Logger = l
	r.Frames = frame.NewThrottler(l, cfg.FrameTargetFPS, cfg.FrameFileExt)
	r.Inertial = imu.NewPairer(l)
	r.Inertial.MaxGap = cfg.IMUMaxPairGap
	r.Locations = gps.NewRecorder(l)
	return r, nil
}

func (r *Recorder) onError(err error) {
	if errors.Is(err, record.ErrRecordingDegraded) {
		r.degraded.Store(true)
	}
}

// Start launches one goroutine per stream. They exit when ctx is done.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(3)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-r.frames:
				if r.live(record.StreamFrame, m.s) {
					r.Frames.Accept(m.s, m.payload, m.ts)
				}
				r.seq[record.StreamFrame].out.Add(1)
			}
		}
	}()
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-r.samples:
				if r.live(record.StreamInertial, m.s) {
					r.Inertial.Pair(m.s, m.Channel, m.TS, m.V[0], m.V[1], m.V[2])
				}
				r.seq[record.StreamInertial].out.Add(1)
			}
		}
	}()
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-r.fixes:
				if r.live(record.StreamLocation, m.s) {
					r.Locations.Record(m.s, m.Fix)
				}
				r.seq[record.StreamLocation].out.Add(1)
			}
		}
	}()
}

// live reports whether s is still the active session. Records of an ended
// session count as dropped.
func (r *Recorder) live(stream record.Stream, s *record.Session) bool {
	if s == r.Logger.Current() {
		return true
	}
	r.dropped[stream].Add(1)
	return false
}

// enqueue hands a message to a stream inbox without blocking.
func enqueue[T any](r *Recorder, stream record.Stream, ch chan<- T, m T) {
	r.seq[stream].in.Add(1)
	select {
	case ch <- m:
	default:
		r.dropped[stream].Add(1)
		r.seq[stream].out.Add(1)
	}
}

// Wait blocks until the stream goroutines returned.
func (r *Recorder) Wait() { r.wg.Wait() }

// HandleFrame accepts one frame topic message.
func (r *Recorder) HandleFrame(msg []byte) {
	s := r.Logger.Current()
	if s == nil {
		return
	}
	ts, payload, err := frame.Decode(msg)
	if err != nil {
		r.malformedMessage("frame", err)
		return
	}
	enqueue(r, record.StreamFrame, r.frames, frameMsg{s: s, ts: ts, payload: payload})
}

// HandleIMU accepts one imu topic message: a single Sample or an array of them.
func (r *Recorder) HandleIMU(msg []byte) {
	s := r.Logger.Current()
	if s == nil {
		return
	}
	var batch []imu.Sample
	if len(msg) > 0 && msg[0] == '[' {
		if err := json.Unmarshal(msg, &batch); err != nil {
			r.malformedMessage("imu", err)
			return
		}
	} else {
		var s imu.Sample
		if err := json.Unmarshal(msg, &s); err != nil {
			r.malformedMessage("imu", err)
			return
		}
		batch = []imu.Sample{s}
	}
	for _, sample := range batch {
		enqueue(r, record.StreamInertial, r.samples, sampleMsg{s: s, Sample: sample})
	}
}

// HandleGPS accepts one gps topic message carrying a Fix.
func (r *Recorder) HandleGPS(msg []byte) {
	s := r.Logger.Current()
	if s == nil {
		return
	}
	var f gps.Fix
	if err := json.Unmarshal(msg, &f); err != nil {
		r.malformedMessage("gps", err)
		return
	}
	enqueue(r, record.StreamLocation, r.fixes, fixMsg{s: s, Fix: f})
}

// HandleControl executes a control topic command.
func (r *Recorder) HandleControl(msg []byte) error {
	var cmd ControlCommand
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	switch cmd.Action {
	case "begin":
		_, err := r.Begin(cmd.Name)
		return err
	case "end":
		_, err := r.End()
		return err
	default:
		return fmt.Errorf("control: unknown action %q", cmd.Action)
	}
}

// Begin starts a session and clears the degraded flag.
func (r *Recorder) Begin(name string) (*record.Session, error) {
	s, err := r.Logger.Begin(name)
	if err != nil {
		return nil, err
	}
	r.degraded.Store(false)
	return s, nil
}

// End stops the active session once the records already in the inboxes were
// handed to it, waiting at most drainTimeout. Records left behind are counted
// as dropped when their stream goroutine reaches them.
func (r *Recorder) End() (record.Summary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.drainTimeout)
	defer cancel()
	return r.end(ctx)
}

func (r *Recorder) end(ctx context.Context) (record.Summary, error) {
	if r.Logger.Current() == nil {
		return record.Summary{}, record.ErrNoActiveSession
	}
	if !r.drain(ctx) {
		log.Printf("recorder: ending with undrained inboxes: %+v", r.Status().Inbox)
	}
	return r.Logger.End()
}

// Status collects the logger and processor counters.
func (r *Recorder) Status() StatusReport {
	return StatusReport{
		Status:   r.Logger.Status(),
		Throttle: r.Frames.Stats(),
		Pairing:  r.Inertial.Stats(),
		Fixes:    r.Locations.Recorded(),
		Inbox: map[string]inbox{
			record.StreamFrame.String():    {Depth: len(r.frames), Dropped: r.dropped[record.StreamFrame].Load()},
			record.StreamInertial.String(): {Depth: len(r.samples), Dropped: r.dropped[record.StreamInertial].Load()},
			record.StreamLocation.String(): {Depth: len(r.fixes), Dropped: r.dropped[record.StreamLocation].Load()},
		},
		Degraded: r.degraded.Load(),
	}
}

// Shutdown ends an active session, waiting at most until ctx expires for the
// stream inboxes to drain first.
func (r *Recorder) Shutdown(ctx context.Context) {
	if _, err := r.end(ctx); err != nil && !errors.Is(err, record.ErrNoActiveSession) {
		log.Printf("recorder: end on shutdown: %v", err)
	}
}

// drain waits until every message that was in an inbox when it was called has
// been resolved. Later arrivals do not extend the wait.
func (r *Recorder) drain(ctx context.Context) bool {
	var marks [len(r.seq)]uint64
	for i := range r.seq {
		marks[i] = r.seq[i].in.Load()
	}

	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		done := true
		for i := range r.seq {
			if r.seq[i].out.Load() < marks[i] {
				done = false
			}
		}
		if done {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-tick.C:
		}
	}
}

func (r *Recorder) malformedMessage(stream string, err error) {
	// malformed traffic is counted, and only logged occasionally
	if n := r.malformed.Add(1); n == 1 || n%1000 == 0 {
		log.Printf("recorder: malformed %s message (%d so far): %v", stream, n, err)
	}
}
