// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/inertial_recorder/internal/clock"
	"github.com/relabs-tech/inertial_recorder/internal/config"
	"github.com/relabs-tech/inertial_recorder/internal/imu"
	"github.com/relabs-tech/inertial_recorder/internal/sensors"
)

var errPublishTimeout = errors.New("publish timed out")

// mqttSampleSink publishes every channel sample as one JSON message.
type mqttSampleSink struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
	errs    atomic.Uint64
}

func (s *mqttSampleSink) OnSample(ch imu.Channel, ts, v0, v1, v2 float64) {
	payload, err := json.Marshal(imu.Sample{Channel: ch, TS: ts, V: [3]float64{v0, v1, v2}})
	if err != nil {
		log.Printf("imu producer: json marshal error: %v", err)
		return
	}
	// not retained; a stale sample must never be replayed into a new session
	// waited inline so a stalled broker slows the poller instead of piling up
	// pending publishes
	token := s.client.Publish(s.topic, 0, false, payload)
	if !token.WaitTimeout(s.timeout) {
		err = errPublishTimeout
	} else {
		err = token.Error()
	}
	if err != nil {
		if n := s.errs.Add(1); n == 1 || n%1000 == 0 {
			log.Printf("imu producer: publish error (%d so far): %v", n, err)
		}
	}
}

// RunIMUProducer polls the MPU9250 and publishes accel and gyro samples.
func RunIMUProducer() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}

	dev, err := sensors.OpenMPU9250("imu", cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMUAccelRange, cfg.IMUGyroRange)
	if err != nil {
		return err
	}

	client, err := connectMQTT(cfg, cfg.MQTTClientIDIMU)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	poller := &sensors.Poller{
		Name:       "imu",
		Dev:        dev,
		Clock:      clock.Monotonic(),
		Sink:       &mqttSampleSink{client: client, topic: cfg.TopicIMU, timeout: cfg.IMUSampleInterval},
		Interval:   cfg.IMUSampleInterval,
		AccelRange: cfg.IMUAccelRange,
		GyroRange:  cfg.IMUGyroRange,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("imu producer: publishing to %s every %s", cfg.TopicIMU, cfg.IMUSampleInterval)
	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Println("imu producer: shutting down")
	return nil
}
