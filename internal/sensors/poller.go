// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/relabs-tech/inertial_recorder/internal/clock"
	"github.com/relabs-tech/inertial_recorder/internal/imu"
)

const standardGravity = 9.80665 // m/s²

// Device is the subset of the MPU9250 driver the poller reads from.
type Device interface {
	GetAccelerationX() (int16, error)
	GetAccelerationY() (int16, error)
	GetAccelerationZ() (int16, error)
	GetRotationX() (int16, error)
	GetRotationY() (int16, error)
	GetRotationZ() (int16, error)
}

// AccelScale returns m/s² per count for accel range r (0=±2g .. 3=±16g).
func AccelScale(r byte) float64 {
	return standardGravity / float64(int(16384)>>(r&3))
}

// GyroScale returns rad/s per count for gyro range r (0=±250°/s .. 3=±2000°/s).
func GyroScale(r byte) float64 {
	dps := 250 * float64(int(1)<<(r&3))
	return dps / 32768 * math.Pi / 180
}

// Poller reads one accel triad and one gyro triad per tick and hands them to
// the sink as two channel samples, each stamped when its triad was read.
type Poller struct {
	Name     string
	Dev      Device
	Clock    clock.Clock
	Sink     imu.SampleSink
	Interval time.Duration

	AccelRange byte
	GyroRange  byte
}

// Poll performs one read cycle.
func (p *Poller) Poll() error {
	ax, ay, az, err := readTriad(p.Dev.GetAccelerationX, p.Dev.GetAccelerationY, p.Dev.GetAccelerationZ)
	if err != nil {
		return fmt.Errorf("%s IMU accel: %w", p.Name, err)
	}
	ts := p.Clock.Now()
	as := AccelScale(p.AccelRange)
	p.Sink.OnSample(imu.Accel, ts, float64(ax)*as, float64(ay)*as, float64(az)*as)

	gx, gy, gz, err := readTriad(p.Dev.GetRotationX, p.Dev.GetRotationY, p.Dev.GetRotationZ)
	if err != nil {
		return fmt.Errorf("%s IMU gyro: %w", p.Name, err)
	}
	ts = p.Clock.Now()
	gs := GyroScale(p.GyroRange)
	p.Sink.OnSample(imu.Gyro, ts, float64(gx)*gs, float64(gy)*gs, float64(gz)*gs)
	return nil
}

// Run polls every Interval until ctx is cancelled. Read errors are logged and
// the loop keeps going.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var failures int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Poll(); err != nil {
				failures++
				// avoid flooding the log at sample rate
				if failures == 1 || failures%100 == 0 {
					log.Printf("poller: %v (%d failures)", err, failures)
				}
				continue
			}
			failures = 0
		}
	}
}

func readTriad(x, y, z func() (int16, error)) (int16, int16, int16, error) {
	vx, err := x()
	if err != nil {
		return 0, 0, 0, err
	}
	vy, err := y()
	if err != nil {
		return 0, 0, 0, err
	}
	vz, err := z()
	if err != nil {
		return 0, 0, 0, err
	}
	return vx, vy, vz, nil
}
