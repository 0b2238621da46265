// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package record

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// drop-oldest gives up after this many evictions and drops the incoming record.
const maxEvictAttempts = 4

// StreamCounts are per-log counters for one session.
type StreamCounts struct {
	Written uint64 `json:"written" yaml:"written"`
	Dropped uint64 `json:"dropped" yaml:"dropped"` // queue saturation
	Failed  uint64 `json:"failed" yaml:"failed"`   // storage failures
}

type streamCounters struct {
	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func (c *streamCounters) snapshot() StreamCounts {
	return StreamCounts{
		Written: c.written.Load(),
		Dropped: c.dropped.Load(),
		Failed:  c.failed.Load(),
	}
}

// Session is the capability handle producers hold while a recording is active.
// Once End revokes it, every Submit call is a silent no-op.
type Session struct {
	id       string
	name     string
	dir      string
	imageDir string
	started  time.Time

	policy     DropPolicy
	flushEvery time.Duration
	escalateAt int
	report     func(error)

	// mu makes "still open + enqueue" atomic against close.
	mu     sync.RWMutex
	closed bool
	queue  chan item

	logs      *sessionLogs
	done      chan struct{}
	closeErrs []error

	counters    [numStreams]streamCounters
	consecutive int // writer goroutine only
	degraded    bool
}

// Name returns the session directory name.
func (s *Session) Name() string { return s.name }

// ID returns the unique recording id stored in the manifest.
func (s *Session) ID() string { return s.id }

// Dir returns the session root directory.
func (s *Session) Dir() string { return s.dir }

// ImageDir returns the directory that holds accepted frames.
func (s *Session) ImageDir() string { return s.imageDir }

// Started returns the wall-clock start time.
func (s *Session) Started() time.Time { return s.started }

// SubmitFrame queues an accepted frame. The image bytes are written before the
// metadata line; payload must not be modified by the caller afterwards.
func (s *Session) SubmitFrame(rec FrameRecord, payload []byte) bool {
	return s.submit(item{stream: StreamFrame, frame: rec, payload: payload})
}

// SubmitInertial queues one paired inertial record.
func (s *Session) SubmitInertial(rec InertialRecord) bool {
	return s.submit(item{stream: StreamInertial, inertial: rec})
}

// SubmitLocation queues one location record.
func (s *Session) SubmitLocation(rec LocationRecord) bool {
	return s.submit(item{stream: StreamLocation, location: rec})
}

// Counts returns the counters of one stream.
func (s *Session) Counts(stream Stream) StreamCounts {
	return s.counters[stream].snapshot()
}

// QueueDepth reports how many records wait for the writer.
func (s *Session) QueueDepth() int {
	return len(s.queue)
}

func (s *Session) submit(it item) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}

	select {
	case s.queue <- it:
		return true
	default:
	}

	if s.policy == DropOldest {
		for i := 0; i < maxEvictAttempts; i++ {
			select {
			case old := <-s.queue:
				s.counters[old.stream].dropped.Add(1)
			default:
			}
			select {
			case s.queue <- it:
				return true
			default:
			}
		}
	}
	s.counters[it.stream].dropped.Add(1)
	return false
}

// close stops intake and waits until the writer drained and closed every log.
func (s *Session) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Session) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case it, ok := <-s.queue:
			if !ok {
				s.closeErrs = s.logs.closeAll()
				return
			}
			s.write(it)
		case <-ticker.C:
			if err := s.logs.inertial.flush(); err != nil {
				s.fail(StreamInertial, err)
			}
		}
	}
}

func (s *Session) write(it item) {
	var err error
	switch it.stream {
	case StreamFrame:
		err = s.writeFrame(it)
	case StreamInertial:
		// flushed by the ticker
		err = s.logs.inertial.appendLine(it.inertial)
	case StreamLocation:
		if err = s.logs.location.appendLine(it.location); err == nil {
			err = s.logs.location.flush()
		}
	default:
		err = fmt.Errorf("recorder: unknown stream %d", it.stream)
	}
	if err != nil {
		s.fail(it.stream, err)
		return
	}
	s.counters[it.stream].written.Add(1)
	s.consecutive = 0
	s.degraded = false
}

func (s *Session) writeFrame(it item) error {
	if err := writeImage(filepath.Join(s.imageDir, it.frame.Name), it.payload); err != nil {
		return err
	}
	if err := s.logs.frame.appendLine(it.frame); err != nil {
		return err
	}
	return s.logs.frame.flush()
}

func (s *Session) fail(stream Stream, err error) {
	s.counters[stream].failed.Add(1)
	s.report(fmt.Errorf("%s record dropped: %w", stream, err))

	s.consecutive++
	if s.escalateAt > 0 && s.consecutive >= s.escalateAt && !s.degraded {
		s.degraded = true
		s.report(fmt.Errorf("%w: %d consecutive write failures in session %q",
			ErrRecordingDegraded, s.consecutive, s.name))
	}
}

func (s *Session) summary(ended time.Time) Summary {
	return Summary{
		ID:        s.id,
		Name:      s.name,
		Dir:       s.dir,
		Started:   s.started,
		Ended:     ended,
		Frames:    s.Counts(StreamFrame),
		Inertial:  s.Counts(StreamInertial),
		Locations: s.Counts(StreamLocation),
	}
}
