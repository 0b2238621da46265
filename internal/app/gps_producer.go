package app

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/inertial_recorder/internal/clock"
	"github.com/relabs-tech/inertial_recorder/internal/config"
	"github.com/relabs-tech/inertial_recorder/internal/gps"
)

// RunGPSProducer opens the GPS serial port, assembles NMEA sentences into
// fixes, and publishes each fix as JSON to the GPS topic.
func RunGPSProducer() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}

	client, err := connectMQTT(cfg, cfg.MQTTClientIDGPS)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	// NOTE: adjust GPS_SERIAL_PORT to match your setup: /dev/serial0, /dev/ttyAMA0, /dev/ttyUSB0, etc.
	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPSSerialPort,
		BaudRate:              uint(cfg.GPSBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return err
	}
	defer port.Close()
	log.Printf("GPS serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	asm := gps.NewAssembler(clock.Monotonic(), "gps")
	asm.UERE = cfg.GPSUERE
	return pumpNMEA(port, asm, func(fix gps.Fix) error {
		payload, err := json.Marshal(fix)
		if err != nil {
			return err
		}
		token := client.Publish(cfg.TopicGPS, 0, false, payload)
		token.Wait()
		return token.Error()
	})
}

// pumpNMEA feeds lines from r into asm and hands every completed fix to emit.
// Parse and emit errors are logged; read errors end the pump.
func pumpNMEA(r io.Reader, asm *gps.Assembler, emit func(gps.Fix) error) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			fix, ok, perr := asm.Feed(line)
			if perr != nil {
				// noisy GPS or partial sentences
				log.Printf("NMEA parse error: %v (line: %q)", perr, line)
			} else if ok {
				if eerr := emit(fix); eerr != nil {
					log.Printf("GPS publish error: %v", eerr)
				} else {
					log.Printf("published GPS fix: lat=%.6f lon=%.6f acc=%.1f", fix.Latitude, fix.Longitude, fix.Accuracy)
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			log.Printf("GPS read error: %v", err)
			return err
		}
	}
}
