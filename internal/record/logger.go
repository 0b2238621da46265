// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package record owns the durable side of a recording: the per-session
// directory, the three append-only logs, and the single writer that serializes
// every record coming from the frame, inertial and location producers.
package record

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DropPolicy selects what happens when the writer queue is full.
type DropPolicy string

const (
	DropNewest DropPolicy = "drop-newest"
	DropOldest DropPolicy = "drop-oldest"
)

// ParseDropPolicy accepts "drop-newest" or "drop-oldest".
func ParseDropPolicy(v string) (DropPolicy, error) {
	switch p := DropPolicy(strings.ToLower(strings.TrimSpace(v))); p {
	case DropNewest, DropOldest:
		return p, nil
	default:
		return "", fmt.Errorf("unknown drop policy %q (want %q or %q)", v, DropNewest, DropOldest)
	}
}

// DefaultSessionLayout names sessions created without an explicit name.
const DefaultSessionLayout = "2006-01-02_15-04-05"

// Options tunes a Logger. Zero values select the defaults.
type Options struct {
	QueueSize             int           // default 1024
	DropPolicy            DropPolicy    // default DropNewest
	InertialFlushInterval time.Duration // default 1s
	FailureEscalation     int           // consecutive failures before ErrRecordingDegraded; default 10
	TargetFPS             float64       // recorded in the manifest only

	// OnError receives every non-fatal diagnostic after it has been logged.
	OnError func(error)
	// Now is the wall clock used for default names and the manifest.
	Now func() time.Time
}

func (o *Options) applyDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.DropPolicy == "" {
		o.DropPolicy = DropNewest
	}
	if o.InertialFlushInterval <= 0 {
		o.InertialFlushInterval = time.Second
	}
	if o.FailureEscalation == 0 {
		o.FailureEscalation = 10
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// State is the logger's lifecycle state.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active":
		*s = Active
	case "idle":
		*s = Idle
	default:
		return fmt.Errorf("unknown state %q", b)
	}
	return nil
}

// Summary describes a finished session.
type Summary struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Dir       string       `json:"dir"`
	Started   time.Time    `json:"started"`
	Ended     time.Time    `json:"ended"`
	Frames    StreamCounts `json:"frames"`
	Inertial  StreamCounts `json:"inertial"`
	Locations StreamCounts `json:"locations"`
}

// Status is a point-in-time view of the logger.
type Status struct {
	State      State        `json:"state"`
	Session    string       `json:"session,omitempty"`
	Dir        string       `json:"dir,omitempty"`
	Since      time.Time    `json:"since,omitempty"`
	QueueDepth int          `json:"queue_depth"`
	Frames     StreamCounts `json:"frames"`
	Inertial   StreamCounts `json:"inertial"`
	Locations  StreamCounts `json:"locations"`
	Last       *Summary     `json:"last,omitempty"`
}

// Source hands producers the session they should write to, or nil while idle.
type Source interface {
	Current() *Session
}

// Logger owns the session lifecycle: Idle -> Begin -> Active -> End -> Idle.
type Logger struct {
	root string
	opts Options

	// ctl serializes Begin and End.
	ctl  sync.Mutex
	cur  atomic.Pointer[Session]
	last atomic.Pointer[Summary]
}

// NewLogger creates a Logger that records sessions under root.
func NewLogger(root string, opts Options) (*Logger, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("recorder: root directory is required")
	}
	if _, err := ParseDropPolicy(string(opts.DropPolicy)); opts.DropPolicy != "" && err != nil {
		return nil, err
	}
	opts.applyDefaults()
	return &Logger{root: root, opts: opts}, nil
}

// Root returns the directory sessions are created in.
func (l *Logger) Root() string { return l.root }

// Current returns the active session, or nil while idle. It is a single atomic
// load, cheap enough for every producer callback.
func (l *Logger) Current() *Session {
	return l.cur.Load()
}

// Begin starts a session named name (a timestamp when empty). It fails with
// ErrSessionActive while another session records, and with a StorageError when
// the directory, logs or manifest cannot be created; the logger then stays Idle.
func (l *Logger) Begin(name string) (*Session, error) {
	l.ctl.Lock()
	defer l.ctl.Unlock()

	if cur := l.cur.Load(); cur != nil {
		return nil, fmt.Errorf("%w: %q", ErrSessionActive, cur.name)
	}

	started := l.opts.Now()
	name, err := l.resolveName(name, started)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(l.root, name)
	imageDir := filepath.Join(dir, ImageDirName)
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return nil, &StorageError{Op: "create session dir", Path: imageDir, Err: err}
	}

	logs, err := openLogs(dir)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:         uuid.NewString(),
		name:       name,
		dir:        dir,
		imageDir:   imageDir,
		started:    started,
		policy:     l.opts.DropPolicy,
		flushEvery: l.opts.InertialFlushInterval,
		escalateAt: l.opts.FailureEscalation,
		report:     l.report,
		queue:      make(chan item, l.opts.QueueSize),
		logs:       logs,
		done:       make(chan struct{}),
	}

	if err := writeManifest(dir, l.manifestFor(s, nil)); err != nil {
		for _, cerr := range logs.closeAll() {
			log.Printf("recorder: %v", cerr)
		}
		return nil, err
	}

	go s.run()
	l.cur.Store(s)
	log.Printf("recorder: session %q started in %s", name, dir)
	return s, nil
}

// End revokes the active session, drains its queue and closes its logs. Close
// failures are reported as diagnostics and never keep the logger Active. When
// nothing is recording it returns ErrNoActiveSession and does nothing else.
func (l *Logger) End() (Summary, error) {
	l.ctl.Lock()
	defer l.ctl.Unlock()

	s := l.cur.Load()
	if s == nil {
		return Summary{}, ErrNoActiveSession
	}
	l.cur.Store(nil)
	s.close()

	for _, err := range s.closeErrs {
		l.report(err)
	}

	sum := s.summary(l.opts.Now())
	if err := writeManifest(s.dir, l.manifestFor(s, &sum)); err != nil {
		l.report(err)
	}
	l.last.Store(&sum)

	log.Printf("recorder: session %q stopped (frames=%d imu=%d gps=%d dropped=%d failed=%d)",
		sum.Name, sum.Frames.Written, sum.Inertial.Written, sum.Locations.Written,
		sum.Frames.Dropped+sum.Inertial.Dropped+sum.Locations.Dropped,
		sum.Frames.Failed+sum.Inertial.Failed+sum.Locations.Failed)
	return sum, nil
}

// Status returns the current state and counters.
func (l *Logger) Status() Status {
	st := Status{State: Idle, Last: l.last.Load()}
	s := l.cur.Load()
	if s == nil {
		return st
	}
	st.State = Active
	st.Session = s.name
	st.Dir = s.dir
	st.Since = s.started
	st.QueueDepth = s.QueueDepth()
	st.Frames = s.Counts(StreamFrame)
	st.Inertial = s.Counts(StreamInertial)
	st.Locations = s.Counts(StreamLocation)
	return st
}

func (l *Logger) report(err error) {
	log.Printf("recorder: %v", err)
	if l.opts.OnError != nil {
		l.opts.OnError(err)
	}
}

// resolveName validates an explicit name, or derives a free timestamp name.
func (l *Logger) resolveName(name string, started time.Time) (string, error) {
	name = strings.TrimSpace(name)
	if name != "" {
		if err := validateName(name); err != nil {
			return "", err
		}
		return name, nil
	}

	base := started.Format(DefaultSessionLayout)
	candidate := base
	for i := 2; ; i++ {
		// anything but "exists" is left for MkdirAll to report
		if _, err := os.Stat(filepath.Join(l.root, candidate)); err != nil {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
}

func validateName(name string) error {
	if name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) ||
		filepath.Clean(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidSessionName, name)
	}
	return nil
}
