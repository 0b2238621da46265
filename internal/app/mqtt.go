// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/inertial_recorder/internal/config"
)

// connectMQTT connects a client with the given id to the configured broker.
func connectMQTT(cfg *config.Config, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("%s: MQTT connection lost: %v", clientID, err)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect %s: %w", cfg.MQTTBroker, token.Error())
	}
	log.Printf("%s: connected to MQTT broker at %s", clientID, cfg.MQTTBroker)
	return client, nil
}

// subscribe registers the recorder's handlers. paho delivers messages of one
// client in order on a single goroutine, so handlers only decode and queue.
func (r *Recorder) subscribe(client mqtt.Client, cfg *config.Config) error {
	handlers := []struct {
		topic string
		fn    func([]byte)
	}{
		{cfg.TopicFrame, r.HandleFrame},
		{cfg.TopicIMU, r.HandleIMU},
		{cfg.TopicGPS, r.HandleGPS},
		{cfg.TopicControl, func(msg []byte) {
			if err := r.HandleControl(msg); err != nil {
				log.Printf("recorder: control: %v", err)
			}
		}},
	}

	for _, h := range handlers {
		fn := h.fn
		token := client.Subscribe(h.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			fn(msg.Payload())
		})
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", h.topic, token.Error())
		}
		log.Printf("recorder: subscribed to %s", h.topic)
	}
	return nil
}

// publishStatus publishes a retained status report every interval until ctx
// is done.
func (r *Recorder) publishStatus(ctx context.Context, client mqtt.Client, topic string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		payload, err := json.Marshal(r.Status())
		if err != nil {
			log.Printf("recorder: status marshal error: %v", err)
			continue
		}
		if token := client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Printf("recorder: status publish error: %v", token.Error())
		}
	}
}
