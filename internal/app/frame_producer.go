// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/relabs-tech/inertial_recorder/internal/clock"
	"github.com/relabs-tech/inertial_recorder/internal/config"
	"github.com/relabs-tech/inertial_recorder/internal/frame"
)

// renderTestPattern draws a moving gradient with the frame counter and capture
// time, so recorded frames can be checked by eye against frame.log.
func renderTestPattern(w, h int, n uint64, ts float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	shift := int(n % 256)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x := range row {
			row[x] = uint8((x + y + shift) & 0x7f)
		}
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Gray{Y: 0xff}),
		Face: basicfont.Face7x13,
	}
	drawer.Dot = fixed.P(4, 13)
	drawer.DrawString(fmt.Sprintf("#%d", n))
	drawer.Dot = fixed.P(4, 26)
	drawer.DrawString(frame.Name(ts, ""))
	return img
}

// RunFrameProducer publishes synthetic frames at FRAME_PRODUCER_FPS. The
// recorder throttles them down to its own target rate.
func RunFrameProducer() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}

	client, err := connectMQTT(cfg, cfg.MQTTClientIDFrame)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.Monotonic()
	ticker := time.NewTicker(time.Duration(float64(time.Second) / cfg.FrameProducerFPS))
	defer ticker.Stop()

	log.Printf("frame producer: %dx%d at %.1f fps to %s", cfg.FrameWidth, cfg.FrameHeight, cfg.FrameProducerFPS, cfg.TopicFrame)

	var n uint64
	for {
		select {
		case <-ctx.Done():
			log.Println("frame producer: shutting down")
			return nil
		case <-ticker.C:
		}

		ts := clk.Now()
		img := renderTestPattern(cfg.FrameWidth, cfg.FrameHeight, n, ts)
		n++

		token := client.Publish(cfg.TopicFrame, 0, false, frame.Encode(ts, img.Pix))
		if token.Wait() && token.Error() != nil {
			log.Printf("frame producer: publish error: %v", token.Error())
		}
	}
}
