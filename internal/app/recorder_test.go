package app

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/inertial_recorder/internal/clock"
	"github.com/relabs-tech/inertial_recorder/internal/config"
	"github.com/relabs-tech/inertial_recorder/internal/frame"
	"github.com/relabs-tech/inertial_recorder/internal/gps"
	"github.com/relabs-tech/inertial_recorder/internal/imu"
	"github.com/relabs-tech/inertial_recorder/internal/record"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	cfg := config.Default()
	cfg.RecordRoot = t.TempDir()
	cfg.FrameTargetFPS = 10

	rec, err := NewRecorder(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rec.Start(ctx)
	t.Cleanup(func() {
		cancel()
		rec.Wait()
	})
	return rec
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestRecorderStreamsIntoSession(t *testing.T) {
	rec := newTestRecorder(t)
	s, err := rec.Begin("run")
	require.NoError(t, err)

	for _, ts := range []float64{0, 0.05, 0.12, 0.25} {
		rec.HandleFrame(frame.Encode(ts, []byte("px")))
	}
	rec.HandleIMU(mustJSON(t, []imu.Sample{
		{Channel: imu.Accel, TS: 1.0, V: [3]float64{1, 1, 1}},
		{Channel: imu.Accel, TS: 1.01, V: [3]float64{2, 2, 2}},
		{Channel: imu.Gyro, TS: 1.02, V: [3]float64{3, 3, 3}},
	}))
	rec.HandleGPS(mustJSON(t, gps.Fix{TS: 3, Latitude: 1, Longitude: 2, Provider: "gps"}))

	require.Eventually(t, func() bool {
		st := rec.Status()
		return st.Throttle.Accepted+st.Throttle.Throttled == 4 &&
			st.Pairing.Paired == 1 && st.Fixes == 1
	}, 2*time.Second, 5*time.Millisecond)

	sum, err := rec.End()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sum.Frames.Written)
	assert.Equal(t, uint64(1), sum.Inertial.Written)
	assert.Equal(t, uint64(1), sum.Locations.Written)

	assert.Equal(t, 3, countLines(t, filepath.Join(s.Dir(), record.FrameLogName)))
	assert.FileExists(t, filepath.Join(s.ImageDir(), frame.Name(0.12, ".img")))
}

func TestRecorderEndWaitsForInboxes(t *testing.T) {
	rec := newTestRecorder(t)
	_, err := rec.Begin("drain")
	require.NoError(t, err)

	rec.HandleFrame(frame.Encode(1, []byte("px")))
	rec.HandleIMU(mustJSON(t, []imu.Sample{
		{Channel: imu.Accel, TS: 1.0, V: [3]float64{1, 1, 1}},
		{Channel: imu.Gyro, TS: 1.01, V: [3]float64{2, 2, 2}},
	}))
	rec.HandleGPS(mustJSON(t, gps.Fix{TS: 1, Provider: "gps"}))

	sum, err := rec.End()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sum.Frames.Written)
	assert.Equal(t, uint64(1), sum.Inertial.Written)
	assert.Equal(t, uint64(1), sum.Locations.Written)
}

func TestRecorderQueuedRecordsStayInTheirSession(t *testing.T) {
	cfg := config.Default()
	cfg.RecordRoot = t.TempDir()
	rec, err := NewRecorder(cfg)
	require.NoError(t, err)
	rec.drainTimeout = 20 * time.Millisecond

	// stream goroutines are not running yet, so these stay in the inboxes
	_, err = rec.Begin("A")
	require.NoError(t, err)
	rec.HandleFrame(frame.Encode(5, []byte("from-A")))
	rec.HandleGPS(mustJSON(t, gps.Fix{TS: 5, Provider: "gps"}))

	sumA, err := rec.End()
	require.NoError(t, err)
	assert.Zero(t, sumA.Frames.Written)

	b, err := rec.Begin("B")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rec.Start(ctx)
	defer func() {
		cancel()
		rec.Wait()
	}()

	require.Eventually(t, func() bool {
		in := rec.Status().Inbox
		return in["frame"].Dropped == 1 && in["location"].Dropped == 1
	}, 2*time.Second, 5*time.Millisecond)

	sumB, err := rec.End()
	require.NoError(t, err)
	assert.Zero(t, sumB.Frames.Written)
	assert.Zero(t, sumB.Locations.Written)
	assert.Zero(t, countLines(t, filepath.Join(b.Dir(), record.FrameLogName)))
	assert.Zero(t, countLines(t, filepath.Join(b.Dir(), record.LocationLogName)))
	assert.Zero(t, rec.Status().Throttle.Accepted)
}

func TestRecorderIdleIgnoresTraffic(t *testing.T) {
	rec := newTestRecorder(t)

	rec.HandleFrame(frame.Encode(1, []byte("px")))
	rec.HandleIMU([]byte(`{"ch":"accel","ts":1,"v":[0,0,9.8]}`))
	rec.HandleGPS([]byte(`{"ts":1}`))
	rec.HandleFrame([]byte("junk"))

	st := rec.Status()
	assert.Equal(t, record.Idle, st.State)
	assert.Zero(t, st.Throttle.Accepted)
	assert.Zero(t, st.Pairing.Paired)
	assert.Zero(t, rec.malformed.Load())
}

func TestRecorderMalformedMessages(t *testing.T) {
	rec := newTestRecorder(t)
	_, err := rec.Begin("bad")
	require.NoError(t, err)
	defer rec.End()

	rec.HandleFrame([]byte("junk"))
	rec.HandleIMU([]byte(`{"ch":"mag"}`))
	rec.HandleIMU([]byte(`[1,2]`))
	rec.HandleGPS([]byte(`{`))
	assert.Equal(t, uint64(4), rec.malformed.Load())
}

func TestRecorderControl(t *testing.T) {
	rec := newTestRecorder(t)

	require.NoError(t, rec.HandleControl([]byte(`{"action":"begin","name":"ctl"}`)))
	assert.Equal(t, "ctl", rec.Status().Session)

	err := rec.HandleControl([]byte(`{"action":"begin","name":"other"}`))
	assert.ErrorIs(t, err, record.ErrSessionActive)
	assert.Equal(t, "ctl", rec.Status().Session)

	require.NoError(t, rec.HandleControl([]byte(`{"action":"end"}`)))
	assert.ErrorIs(t, rec.HandleControl([]byte(`{"action":"end"}`)), record.ErrNoActiveSession)

	err = rec.HandleControl([]byte(`{"action":"pause"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
	assert.Error(t, rec.HandleControl([]byte(`nope`)))
}

func TestRecorderShutdownEndsSession(t *testing.T) {
	rec := newTestRecorder(t)
	_, err := rec.Begin("")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rec.Shutdown(ctx)

	st := rec.Status()
	assert.Equal(t, record.Idle, st.State)
	require.NotNil(t, st.Last)

	// idle shutdown is a no-op
	rec.Shutdown(ctx)
}

func TestPumpNMEA(t *testing.T) {
	input := strings.Join([]string{
		"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47",
		"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A",
		"$GPRMC,broken*00",
		"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A",
	}, "\r\n")

	var fixes []gps.Fix
	err := pumpNMEA(strings.NewReader(input), gps.NewAssembler(clock.NewManual(7), "gps"), func(f gps.Fix) error {
		fixes = append(fixes, f)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, fixes, 2)
	assert.InDelta(t, 545.4, fixes[0].Altitude, 1e-9)
	assert.Equal(t, 7.0, fixes[1].TS)
}

func TestRenderTestPattern(t *testing.T) {
	img := renderTestPattern(64, 32, 3, 1.5)
	assert.Equal(t, 64*32, len(img.Pix))
	// gradient pixel away from the text
	assert.Equal(t, uint8((60+30+3)&0x7f), img.GrayAt(60, 30).Y)

	bright := 0
	for _, p := range img.Pix {
		if p == 0xff {
			bright++
		}
	}
	assert.Positive(t, bright, "text should be drawn")
}

func TestStatusLine(t *testing.T) {
	idle := StatusReport{Status: record.Status{State: record.Idle}}
	assert.Equal(t, "[REC ] idle", statusLine(idle))

	active := StatusReport{
		Status: record.Status{
			State:    record.Active,
			Session:  "s1",
			Frames:   record.StreamCounts{Written: 5, Dropped: 1},
			Inertial: record.StreamCounts{Written: 7, Failed: 2},
		},
		Degraded: true,
	}
	line := statusLine(active)
	assert.Contains(t, line, "s1")
	assert.Contains(t, line, "frames=5 imu=7 gps=0")
	assert.Contains(t, line, "dropped=1 failed=2")
	assert.Contains(t, line, "DEGRADED")
}

func TestRenderStatus(t *testing.T) {
	empty := renderStatus(StatusReport{}, false)
	active := renderStatus(StatusReport{Status: record.Status{State: record.Active, Session: "s"}}, true)
	assert.NotEqual(t, empty.Pix, active.Pix)
	assert.Equal(t, 128*64/8, len(active.Pix))
}
