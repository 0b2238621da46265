package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/inertial_recorder/internal/config"
	"github.com/relabs-tech/inertial_recorder/internal/record"
)

// DisplayData holds the latest recorder status for the OLED.
type DisplayData struct {
	mu         sync.RWMutex
	status     StatusReport
	haveStatus bool
}

func RunDisplay() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus ("" selects the first one)
	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, cfg.DisplayI2CAddr, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := dev.Draw(dev.Bounds(), renderSplash(), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &DisplayData{}

	client, err := connectMQTT(cfg, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	token := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var st StatusReport
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			log.Printf("display: status unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.status = st
		data.haveStatus = true
		data.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicStatus)

	ticker := time.NewTicker(cfg.DisplayUpdateInterval)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		data.mu.RLock()
		st, have := data.status, data.haveStatus
		data.mu.RUnlock()

		if err := dev.Draw(dev.Bounds(), renderStatus(st, have), image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
	return nil
}

func newScreen() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

// renderStatus lays out up to four 13px lines on the 128x64 panel.
func renderStatus(st StatusReport, haveData bool) *image1bit.VerticalLSB {
	img, drawer := newScreen()

	line := func(y int, s string) {
		drawer.Dot = fixed.P(0, y)
		drawer.DrawString(s)
	}

	switch {
	case !haveData:
		line(26, "Recorder")
		line(39, "Waiting...")
	case st.State != record.Active:
		line(13, "IDLE")
		if st.Last != nil {
			line(26, truncate(st.Last.Name, 18))
			line(39, fmt.Sprintf("F%d I%d G%d", st.Last.Frames.Written, st.Last.Inertial.Written, st.Last.Locations.Written))
		}
	default:
		head := "REC"
		if st.Degraded {
			head = "REC DEGRADED"
		}
		line(13, head)
		line(26, truncate(st.Session, 18))
		line(39, fmt.Sprintf("F%d I%d G%d", st.Frames.Written, st.Inertial.Written, st.Locations.Written))
		line(52, fmt.Sprintf("%.1ffps q%d", st.Throttle.EffectiveFPS, st.QueueDepth))
	}
	return img
}

func renderSplash() *image1bit.VerticalLSB {
	img, drawer := newScreen()

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Inertial Pi"))

	drawer.Dot = fixed.P(20, 43)
	drawer.DrawBytes([]byte("Recorder"))

	return img
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
