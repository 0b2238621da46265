package record

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, opts Options) *Logger {
	t.Helper()
	l, err := NewLogger(t.TempDir(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = l.End() })
	return l
}

func readLines[T any](t *testing.T, path string) []T {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []T
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var v T
		require.NoError(t, json.Unmarshal(sc.Bytes(), &v), "line %q", sc.Text())
		out = append(out, v)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestBeginCreatesSessionLayout(t *testing.T) {
	l := newTestLogger(t, Options{TargetFPS: 12})

	s, err := l.Begin("run1")
	require.NoError(t, err)
	assert.Equal(t, Active, l.Status().State)
	assert.Same(t, s, l.Current())

	for _, p := range []string{
		filepath.Join(s.Dir(), ImageDirName),
		filepath.Join(s.Dir(), FrameLogName),
		filepath.Join(s.Dir(), InertialLogName),
		filepath.Join(s.Dir(), LocationLogName),
	} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}

	m, err := ReadManifest(s.Dir())
	require.NoError(t, err)
	assert.Equal(t, "run1", m.Name)
	assert.Equal(t, s.ID(), m.ID)
	assert.Equal(t, 12.0, m.TargetFPS)
	assert.Nil(t, m.Counts)
}

func TestBeginDefaultNameUsesStartTime(t *testing.T) {
	at := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	l := newTestLogger(t, Options{Now: func() time.Time { return at }})

	s, err := l.Begin("")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14_15-09-26", s.Name())
	_, err = l.End()
	require.NoError(t, err)

	s, err = l.Begin("")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14_15-09-26_2", s.Name())
}

func TestBeginRejectsPathLikeNames(t *testing.T) {
	l := newTestLogger(t, Options{})
	for _, name := range []string{"..", "a/b", `a\b`, "."} {
		_, err := l.Begin(name)
		assert.ErrorIs(t, err, ErrInvalidSessionName, name)
	}
	assert.Equal(t, Idle, l.Status().State)
}

func TestSecondBeginFailsAndFirstKeepsRecording(t *testing.T) {
	l := newTestLogger(t, Options{})

	first, err := l.Begin("first")
	require.NoError(t, err)

	_, err = l.Begin("second")
	require.ErrorIs(t, err, ErrSessionActive)
	assert.Same(t, first, l.Current())
	_, statErr := os.Stat(filepath.Join(l.Root(), "second"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))

	require.True(t, first.SubmitLocation(LocationRecord{TS: 1, Lat: 2, Provider: "gps"}))
	sum, err := l.End()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sum.Locations.Written)

	recs := readLines[LocationRecord](t, filepath.Join(first.Dir(), LocationLogName))
	require.Len(t, recs, 1)
	assert.Equal(t, "gps", recs[0].Provider)
}

func TestEndWhileIdleIsSafe(t *testing.T) {
	l := newTestLogger(t, Options{})

	_, err := l.End()
	assert.ErrorIs(t, err, ErrNoActiveSession)
	_, err = l.End()
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.Equal(t, Idle, l.Status().State)
}

func TestBeginFailsWhenDirectoryCannotBeCreated(t *testing.T) {
	l := newTestLogger(t, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(l.Root(), "blocked"), []byte("x"), 0o644))

	_, err := l.Begin("blocked")
	require.Error(t, err)
	assert.True(t, IsStorageFailure(err))
	assert.Equal(t, Idle, l.Status().State)
	assert.Nil(t, l.Current())
}

func TestBeginFailsWhenLogCannotBeOpened(t *testing.T) {
	l := newTestLogger(t, Options{})
	// a directory where gps.log should go makes the third open fail
	require.NoError(t, os.MkdirAll(filepath.Join(l.Root(), "partial", LocationLogName), 0o755))

	_, err := l.Begin("partial")
	require.Error(t, err)
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "open log", se.Op)
	assert.Equal(t, Idle, l.Status().State)

	// recording can start once the obstacle is gone
	require.NoError(t, os.RemoveAll(filepath.Join(l.Root(), "partial", LocationLogName)))
	_, err = l.Begin("partial")
	require.NoError(t, err)
}

func TestRevokedSessionDropsSilently(t *testing.T) {
	l := newTestLogger(t, Options{})
	s, err := l.Begin("short")
	require.NoError(t, err)
	_, err = l.End()
	require.NoError(t, err)

	assert.False(t, s.SubmitInertial(InertialRecord{TS: 1}))
	assert.False(t, s.SubmitFrame(FrameRecord{Name: "1.000000000.img", TS: 1}, []byte{1}))

	info, err := os.Stat(filepath.Join(s.Dir(), InertialLogName))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
	entries, err := os.ReadDir(s.ImageDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEndDrainsQueuedRecords(t *testing.T) {
	l := newTestLogger(t, Options{QueueSize: 4096, InertialFlushInterval: time.Hour})
	s, err := l.Begin("drain")
	require.NoError(t, err)

	const n = 2000
	for i := 0; i < n; i++ {
		require.True(t, s.SubmitInertial(InertialRecord{TS: float64(i)}))
	}
	sum, err := l.End()
	require.NoError(t, err)
	assert.Equal(t, uint64(n), sum.Inertial.Written)

	recs := readLines[InertialRecord](t, filepath.Join(s.Dir(), InertialLogName))
	require.Len(t, recs, n)
	for i, r := range recs {
		assert.Equal(t, float64(i), r.TS)
	}

	m, err := ReadManifest(s.Dir())
	require.NoError(t, err)
	require.NotNil(t, m.Counts)
	assert.Equal(t, uint64(n), m.Counts.Inertial.Written)
	assert.False(t, m.EndedAt.IsZero())
}

func TestFrameImageWrittenBeforeMetadata(t *testing.T) {
	l := newTestLogger(t, Options{})
	s, err := l.Begin("frames")
	require.NoError(t, err)

	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	require.True(t, s.SubmitFrame(FrameRecord{Name: "0.100000000.img", TS: 0.1}, payload))
	_, err = l.End()
	require.NoError(t, err)

	recs := readLines[FrameRecord](t, filepath.Join(s.Dir(), FrameLogName))
	require.Len(t, recs, 1)
	raw, err := os.ReadFile(filepath.Join(s.ImageDir(), recs[0].Name))
	require.NoError(t, err)
	assert.Equal(t, payload, raw)
}

func TestFailedImageNeverReachesFrameLog(t *testing.T) {
	var mu sync.Mutex
	var reported []error
	l := newTestLogger(t, Options{OnError: func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}})
	s, err := l.Begin("badframe")
	require.NoError(t, err)

	// occupy the image name so the exclusive create fails
	require.NoError(t, os.Mkdir(filepath.Join(s.ImageDir(), "1.000000000.img"), 0o755))

	s.SubmitFrame(FrameRecord{Name: "1.000000000.img", TS: 1}, []byte{1})
	s.SubmitFrame(FrameRecord{Name: "2.000000000.img", TS: 2}, []byte{2})
	sum, err := l.End()
	require.NoError(t, err)

	assert.Equal(t, uint64(1), sum.Frames.Written)
	assert.Equal(t, uint64(1), sum.Frames.Failed)

	recs := readLines[FrameRecord](t, filepath.Join(s.Dir(), FrameLogName))
	require.Len(t, recs, 1)
	assert.Equal(t, "2.000000000.img", recs[0].Name)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.True(t, IsStorageFailure(reported[0]))
}

func TestConcurrentProducersAndEnd(t *testing.T) {
	l := newTestLogger(t, Options{QueueSize: 64})
	s, err := l.Begin("race")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < 3; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				switch p {
				case 0:
					s.SubmitInertial(InertialRecord{TS: float64(i)})
				case 1:
					s.SubmitLocation(LocationRecord{TS: float64(i)})
				default:
					s.SubmitFrame(FrameRecord{Name: fmt.Sprintf("%d.img", i), TS: float64(i)}, []byte{byte(i)})
				}
			}
		}(p)
	}
	time.Sleep(5 * time.Millisecond)
	sum, err := l.End()
	require.NoError(t, err)
	wg.Wait()

	// every line on disk is whole and every frame line has its image
	frames := readLines[FrameRecord](t, filepath.Join(s.Dir(), FrameLogName))
	assert.Equal(t, int(sum.Frames.Written), len(frames))
	for _, f := range frames {
		_, err := os.Stat(filepath.Join(s.ImageDir(), f.Name))
		assert.NoError(t, err)
	}
	assert.Equal(t, int(sum.Inertial.Written), len(readLines[InertialRecord](t, filepath.Join(s.Dir(), InertialLogName))))
	assert.Equal(t, int(sum.Locations.Written), len(readLines[LocationRecord](t, filepath.Join(s.Dir(), LocationLogName))))
}

func TestParseDropPolicy(t *testing.T) {
	p, err := ParseDropPolicy(" Drop-Oldest ")
	require.NoError(t, err)
	assert.Equal(t, DropOldest, p)

	_, err = ParseDropPolicy("block")
	assert.Error(t, err)

	_, err = NewLogger(t.TempDir(), Options{DropPolicy: "block"})
	assert.Error(t, err)
}
