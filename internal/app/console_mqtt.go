package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/inertial_recorder/internal/config"
	"github.com/relabs-tech/inertial_recorder/internal/gps"
	"github.com/relabs-tech/inertial_recorder/internal/record"
)

// statusLine renders a status report as one console line.
func statusLine(st StatusReport) string {
	if st.State != record.Active {
		line := "[REC ] idle"
		if st.Last != nil {
			line += fmt.Sprintf("  last=%s frames=%d imu=%d gps=%d",
				st.Last.Name, st.Last.Frames.Written, st.Last.Inertial.Written, st.Last.Locations.Written)
		}
		return line
	}
	line := fmt.Sprintf("[REC ] %s  frames=%d imu=%d gps=%d  queue=%d dropped=%d failed=%d  fps=%.1f",
		st.Session,
		st.Frames.Written, st.Inertial.Written, st.Locations.Written,
		st.QueueDepth,
		st.Frames.Dropped+st.Inertial.Dropped+st.Locations.Dropped,
		st.Frames.Failed+st.Inertial.Failed+st.Locations.Failed,
		st.Throttle.EffectiveFPS)
	if st.Degraded {
		line += "  DEGRADED"
	}
	return line
}

func RunConsoleMQTT() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}

	client, err := connectMQTT(cfg, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}

	// Subscribe to recorder status
	statusToken := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var st StatusReport
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			log.Printf("console: status unmarshal error: %v", err)
			return
		}
		fmt.Println(statusLine(st))
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicStatus)

	// Subscribe to GPS
	gpsToken := client.Subscribe(cfg.TopicGPS, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var f gps.Fix
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("console: gps unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[GPS ]  ts=%.3f lat=%.6f lon=%.6f alt=%.1fm speed=%.1fm/s bearing=%.1f° acc=%.1fm\n",
			f.TS, f.Latitude, f.Longitude, f.Altitude, f.Speed, f.Bearing, f.Accuracy,
		)
	})
	gpsToken.Wait()
	if gpsToken.Error() != nil {
		return gpsToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicGPS)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
