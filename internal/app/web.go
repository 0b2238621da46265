// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/inertial_recorder/internal/record"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

type beginRequest struct {
	Name string `json:"name"`
}

type sessionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Dir  string `json:"dir"`
}

// endResponse is the final summary plus the manifest as written to disk.
type endResponse struct {
	record.Summary
	Manifest *record.Manifest `json:"manifest,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewWebHandler serves the session control API and the status websocket.
func NewWebHandler(rec *Recorder, statusEvery time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/session", func(w http.ResponseWriter, r *http.Request) {
		var req beginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		s, err := rec.Begin(req.Name)
		if err != nil {
			writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, sessionResponse{ID: s.ID(), Name: s.Name(), Dir: s.Dir()})
	})

	mux.HandleFunc("DELETE /api/session", func(w http.ResponseWriter, r *http.Request) {
		sum, err := rec.End()
		if err != nil {
			writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
			return
		}
		resp := endResponse{Summary: sum}
		if m, err := record.ReadManifest(sum.Dir); err != nil {
			log.Printf("web: read manifest of %q: %v", sum.Name, err)
		} else {
			resp.Manifest = m
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rec.Status())
	})

	mux.HandleFunc("GET /ws/status", func(w http.ResponseWriter, r *http.Request) {
		handleStatusWS(w, r, rec, statusEvery)
	})

	return mux
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, record.ErrSessionActive), errors.Is(err, record.ErrNoActiveSession):
		return http.StatusConflict
	case errors.Is(err, record.ErrInvalidSessionName):
		return http.StatusBadRequest
	case record.IsStorageFailure(err):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// handleStatusWS pushes a status report immediately and then every interval
// until the client goes away.
func handleStatusWS(w http.ResponseWriter, r *http.Request, rec *Recorder, interval time.Duration) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// reader detects the close; clients send nothing else
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("web: websocket error: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := conn.WriteJSON(rec.Status()); err != nil {
			return
		}
		select {
		case <-gone:
			return
		case <-ticker.C:
		}
	}
}
