// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/inertial_recorder/internal/config"
)

// RunRecorder runs the recording service: MQTT ingest and control, the status
// topic, and the HTTP API. It returns after SIGINT/SIGTERM once any active
// session has been ended.
func RunRecorder() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}

	rec, err := NewRecorder(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	streams, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()
	rec.Start(streams)

	client, err := connectMQTT(cfg, cfg.MQTTClientIDRecorder)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := rec.subscribe(client, cfg); err != nil {
		return err
	}
	go rec.publishStatus(ctx, client, cfg.TopicStatus, cfg.StatusInterval)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           NewWebHandler(rec, cfg.StatusInterval),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		log.Printf("recorder: web server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	log.Printf("recorder: ready, sessions go to %s", cfg.RecordRoot)

	select {
	case <-ctx.Done():
		log.Println("recorder: shutting down")
	case err = <-srvErr:
		log.Printf("recorder: web server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Printf("recorder: web server shutdown: %v", serr)
	}
	rec.Shutdown(shutdownCtx)
	cancelStreams()
	rec.Wait()
	return err
}
