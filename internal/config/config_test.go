package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/inertial_recorder/internal/record"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader("# empty\n\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 12.0, cfg.FrameTargetFPS)
	assert.Equal(t, record.DropNewest, cfg.QueueDropPolicy)
	assert.Zero(t, cfg.IMUMaxPairGap)
}

func TestParseValues(t *testing.T) {
	src := `
RECORD_ROOT = /data/rec
FRAME_TARGET_FPS=10
FRAME_FILE_EXT=jpg
IMU_FLUSH_INTERVAL=250
IMU_MAX_PAIR_GAP=0.02
QUEUE_SIZE=64
QUEUE_DROP_POLICY=drop-oldest
FAILURE_ESCALATION=-1
TOPIC_FRAME=cam/frames
STATUS_INTERVAL=2000
IMU_ACCEL_RANGE=2
IMU_GYRO_RANGE=1
DISPLAY_I2C_BUS=1
DISPLAY_I2C_ADDR=0x3D
GPS_UERE=3.5
`
	cfg, err := Parse(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, "/data/rec", cfg.RecordRoot)
	assert.Equal(t, 10.0, cfg.FrameTargetFPS)
	assert.Equal(t, ".jpg", cfg.FrameFileExt)
	assert.Equal(t, 250*time.Millisecond, cfg.IMUFlushInterval)
	assert.Equal(t, 0.02, cfg.IMUMaxPairGap)
	assert.Equal(t, 64, cfg.QueueSize)
	assert.Equal(t, record.DropOldest, cfg.QueueDropPolicy)
	assert.Equal(t, -1, cfg.FailureEscalation)
	assert.Equal(t, "cam/frames", cfg.TopicFrame)
	assert.Equal(t, 2*time.Second, cfg.StatusInterval)
	assert.Equal(t, byte(2), cfg.IMUAccelRange)
	assert.Equal(t, byte(1), cfg.IMUGyroRange)
	assert.Equal(t, "1", cfg.DisplayI2CBus)
	assert.Equal(t, uint16(0x3D), cfg.DisplayI2CAddr)
	assert.Equal(t, 3.5, cfg.GPSUERE)

	opts := cfg.RecordOptions()
	assert.Equal(t, 64, opts.QueueSize)
	assert.Equal(t, record.DropOldest, opts.DropPolicy)
	assert.Equal(t, 250*time.Millisecond, opts.InertialFlushInterval)
	assert.Equal(t, 10.0, opts.TargetFPS)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no equals", "RECORD_ROOT", "invalid config line 1"},
		{"unknown key", "NOPE=1", "unknown config key"},
		{"bad fps", "FRAME_TARGET_FPS=0", "FRAME_TARGET_FPS must be > 0"},
		{"bad policy", "QUEUE_DROP_POLICY=drop-all", "unknown drop policy"},
		{"bad range", "IMU_ACCEL_RANGE=4", "IMU_ACCEL_RANGE must be 0-3"},
		{"bad gap", "IMU_MAX_PAIR_GAP=-1", "IMU_MAX_PAIR_GAP"},
		{"bad uere", "GPS_UERE=-2", "invalid GPS_UERE"},
		{"bad interval", "STATUS_INTERVAL=abc", "invalid STATUS_INTERVAL"},
		{"empty root", "RECORD_ROOT=", "RECORD_ROOT is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadAndGlobal(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "inertial_recorder.txt")
	require.NoError(t, os.WriteFile(path, []byte("WEB_SERVER_PORT=9090\n"), 0o644))

	require.NoError(t, InitGlobal(path))
	require.NotNil(t, Get())
	assert.Equal(t, 9090, Get().WebServerPort)
}
