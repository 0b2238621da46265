// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package record

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestName is the per-session description written next to the logs.
const ManifestName = "session.yaml"

// Manifest is written when a session starts and rewritten with final counters
// when it ends.
type Manifest struct {
	ID         string    `yaml:"id" json:"id"`
	Name       string    `yaml:"name" json:"name"`
	StartedAt  time.Time `yaml:"started_at" json:"started_at"`
	EndedAt    time.Time `yaml:"ended_at,omitempty" json:"ended_at,omitempty"`
	TargetFPS  float64   `yaml:"target_fps,omitempty" json:"target_fps,omitempty"`
	QueueSize  int       `yaml:"queue_size" json:"queue_size"`
	DropPolicy string    `yaml:"drop_policy" json:"drop_policy"`
	IMUFlush   string    `yaml:"imu_flush_interval" json:"imu_flush_interval"`

	Logs struct {
		Frame    string `yaml:"frame" json:"frame"`
		Inertial string `yaml:"inertial" json:"inertial"`
		Location string `yaml:"location" json:"location"`
		Images   string `yaml:"images" json:"images"`
	} `yaml:"logs" json:"logs"`

	Counts *ManifestCounts `yaml:"counts,omitempty" json:"counts,omitempty"`
}

// ManifestCounts holds the final per-stream counters.
type ManifestCounts struct {
	Frames    StreamCounts `yaml:"frames" json:"frames"`
	Inertial  StreamCounts `yaml:"inertial" json:"inertial"`
	Locations StreamCounts `yaml:"locations" json:"locations"`
}

func (l *Logger) manifestFor(s *Session, sum *Summary) Manifest {
	m := Manifest{
		ID:         s.id,
		Name:       s.name,
		StartedAt:  s.started,
		TargetFPS:  l.opts.TargetFPS,
		QueueSize:  l.opts.QueueSize,
		DropPolicy: string(l.opts.DropPolicy),
		IMUFlush:   l.opts.InertialFlushInterval.String(),
	}
	m.Logs.Frame = FrameLogName
	m.Logs.Inertial = InertialLogName
	m.Logs.Location = LocationLogName
	m.Logs.Images = ImageDirName
	if sum != nil {
		m.EndedAt = sum.Ended
		m.Counts = &ManifestCounts{
			Frames:    sum.Frames,
			Inertial:  sum.Inertial,
			Locations: sum.Locations,
		}
	}
	return m
}

// writeManifest replaces the manifest through a rename so readers never see a
// half-written file.
func writeManifest(dir string, m Manifest) error {
	path := filepath.Join(dir, ManifestName)
	raw, err := yaml.Marshal(&m)
	if err != nil {
		return &StorageError{Op: "encode manifest", Path: path, Err: err}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return &StorageError{Op: "write manifest", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &StorageError{Op: "rename manifest", Path: path, Err: err}
	}
	return nil
}

// ReadManifest loads the manifest of the session in dir.
func ReadManifest(dir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
