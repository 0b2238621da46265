// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/inertial_recorder/internal/record"
)

// Config holds all application configuration values.
type Config struct {
	// Recording
	RecordRoot        string
	FrameTargetFPS    float64
	FrameFileExt      string
	IMUFlushInterval  time.Duration
	IMUMaxPairGap     float64 // seconds, 0 disables the pairing window
	QueueSize         int
	QueueDropPolicy   record.DropPolicy
	FailureEscalation int

	// MQTT
	MQTTBroker           string
	MQTTClientIDRecorder string
	MQTTClientIDIMU      string
	MQTTClientIDGPS      string
	MQTTClientIDFrame    string
	MQTTClientIDConsole  string
	MQTTClientIDDisplay  string

	// Topics
	TopicFrame   string
	TopicIMU     string
	TopicGPS     string
	TopicControl string
	TopicStatus  string

	StatusInterval time.Duration

	// Web Server
	WebServerPort int

	// GPS
	GPSSerialPort string
	GPSBaudRate   int
	GPSUERE       float64 // meters per unit of HDOP, used when no GST arrives

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange      byte
	IMUSampleInterval time.Duration

	// Frame producer
	FrameProducerFPS float64
	FrameWidth       int
	FrameHeight      int

	// Display
	DisplayI2CBus         string
	DisplayI2CAddr        uint16
	DisplayUpdateInterval time.Duration
}

// Default returns a Config with every optional value filled in.
func Default() *Config {
	return &Config{
		RecordRoot:        "./recordings",
		FrameTargetFPS:    12,
		FrameFileExt:      ".img",
		IMUFlushInterval:  time.Second,
		QueueSize:         1024,
		QueueDropPolicy:   record.DropNewest,
		FailureEscalation: 10,

		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDRecorder: "inertial-recorder",
		MQTTClientIDIMU:      "inertial-imu-producer",
		MQTTClientIDGPS:      "inertial-gps-producer",
		MQTTClientIDFrame:    "inertial-frame-producer",
		MQTTClientIDConsole:  "inertial-console",
		MQTTClientIDDisplay:  "inertial-display",

		TopicFrame:   "inertial/frame",
		TopicIMU:     "inertial/imu",
		TopicGPS:     "inertial/gps",
		TopicControl: "inertial/recorder/control",
		TopicStatus:  "inertial/recorder/status",

		StatusInterval: time.Second,
		WebServerPort:  8080,

		GPSSerialPort: "/dev/serial0",
		GPSBaudRate:   9600,
		GPSUERE:       5,

		IMUSPIDevice:      "/dev/spidev0.0",
		IMUCSPin:          "GPIO8",
		IMUSampleInterval: 10 * time.Millisecond,

		FrameProducerFPS: 30,
		FrameWidth:       320,
		FrameHeight:      240,

		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 500 * time.Millisecond,
	}
}

// Package-level singleton; InitGlobal sets it once, Get reads it.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of Default().
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Recording
	case "RECORD_ROOT":
		c.RecordRoot = value
	case "FRAME_TARGET_FPS":
		c.FrameTargetFPS, err = parsePositiveFloat(key, value)
	case "FRAME_FILE_EXT":
		if value != "" && !strings.HasPrefix(value, ".") {
			value = "." + value
		}
		c.FrameFileExt = value
	case "IMU_FLUSH_INTERVAL":
		c.IMUFlushInterval, err = parseMillis(key, value)
	case "IMU_MAX_PAIR_GAP":
		c.IMUMaxPairGap, err = strconv.ParseFloat(value, 64)
		if err != nil || c.IMUMaxPairGap < 0 {
			return fmt.Errorf("invalid IMU_MAX_PAIR_GAP %q: must be seconds >= 0", value)
		}
	case "QUEUE_SIZE":
		c.QueueSize, err = parsePositiveInt(key, value)
	case "QUEUE_DROP_POLICY":
		c.QueueDropPolicy, err = record.ParseDropPolicy(value)
	case "FAILURE_ESCALATION":
		c.FailureEscalation, err = strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid FAILURE_ESCALATION %q: %w", value, err)
		}

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_RECORDER":
		c.MQTTClientIDRecorder = value
	case "MQTT_CLIENT_ID_IMU":
		c.MQTTClientIDIMU = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_FRAME":
		c.MQTTClientIDFrame = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_FRAME":
		c.TopicFrame = value
	case "TOPIC_IMU":
		c.TopicIMU = value
	case "TOPIC_GPS":
		c.TopicGPS = value
	case "TOPIC_CONTROL":
		c.TopicControl = value
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "STATUS_INTERVAL":
		c.StatusInterval, err = parseMillis(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parsePositiveInt(key, value)

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = parsePositiveInt(key, value)
	case "GPS_UERE":
		c.GPSUERE, err = strconv.ParseFloat(value, 64)
		if err != nil || c.GPSUERE < 0 {
			return fmt.Errorf("invalid GPS_UERE %q: must be meters >= 0", value)
		}

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		rangeVal, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, perr)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_GYRO_RANGE":
		rangeVal, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid IMU_GYRO_RANGE %q: %w", value, perr)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMUGyroRange = byte(rangeVal)
	case "IMU_SAMPLE_INTERVAL":
		c.IMUSampleInterval, err = parseMillis(key, value)

	// Frame producer
	case "FRAME_PRODUCER_FPS":
		c.FrameProducerFPS, err = parsePositiveFloat(key, value)
	case "FRAME_WIDTH":
		c.FrameWidth, err = parsePositiveInt(key, value)
	case "FRAME_HEIGHT":
		c.FrameHeight, err = parsePositiveInt(key, value)

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		addr, perr := strconv.ParseUint(value, 0, 16)
		if perr != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, perr)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseMillis(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}
	return err
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.RecordRoot == "" {
		return fmt.Errorf("RECORD_ROOT is required")
	}
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicControl == "" || c.TopicStatus == "" {
		return fmt.Errorf("TOPIC_CONTROL and TOPIC_STATUS are required")
	}
	if c.FrameFileExt == "" {
		return fmt.Errorf("FRAME_FILE_EXT is required")
	}
	return nil
}

// RecordOptions maps the recording keys onto logger options.
func (c *Config) RecordOptions() record.Options {
	return record.Options{
		QueueSize:             c.QueueSize,
		DropPolicy:            c.QueueDropPolicy,
		InertialFlushInterval: c.IMUFlushInterval,
		FailureEscalation:     c.FailureEscalation,
		TargetFPS:             c.FrameTargetFPS,
	}
}

func parseMillis(key, value string) (time.Duration, error) {
	ms, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if ms <= 0 {
		return 0, fmt.Errorf("%s must be > 0 milliseconds, got %d", key, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parsePositiveInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be > 0, got %d", key, n)
	}
	return n, nil
}

func parsePositiveFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("%s must be > 0, got %g", key, f)
	}
	return f, nil
}

// InitGlobal initializes the global configuration from file.
// Only the first call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
