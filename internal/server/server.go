// Package server exposes the live meter over HTTP: a websocket stream
// that pushes aggregated snapshots and a small control API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/akzios/bpsr-tools-sub001/internal/combat"
	"github.com/akzios/bpsr-tools-sub001/internal/log"
)

const writeTimeout = 2 * time.Second

// Server is the HTTP/websocket front of the aggregator.
type Server struct {
	addr   string
	agg    *combat.Aggregator
	server *http.Server
	log    log.Logger
}

// NewServer creates a server bound to addr, serving snapshots from agg.
func NewServer(addr string, agg *combat.Aggregator) *Server {
	return &Server{
		addr: addr,
		agg:  agg,
		log:  log.GetLogger().WithField("component", "server"),
	}
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/pause", s.handlePause)
	mux.HandleFunc("/api/clear", s.handleClear)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.WithField("addr", s.addr).Info("starting meter server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("meter server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("meter server shutdown failed: %w", err)
	}
	return nil
}

// handleWS upgrades the connection and streams snapshots until the
// client goes away. A client that cannot keep up only ever sees the
// latest snapshot; intermediate ones are displaced upstream.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // local tool, clients connect from file:// pages
	})
	if err != nil {
		s.log.WithError(err).Warn("websocket accept failed")
		return
	}

	session := uuid.NewString()
	id, ch := s.agg.Subscribe()
	defer s.agg.Unsubscribe(id)

	logger := s.log.WithField("session", session)
	logger.Info("websocket client connected")

	// Read side only watches for close; clients send nothing.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			logger.Info("websocket client disconnected")
			return
		case snap := <-ch:
			payload, err := json.Marshal(snap)
			if err != nil {
				logger.WithError(err).Error("snapshot encode failed")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				logger.WithError(err).Info("websocket write failed, dropping client")
				conn.Close(websocket.StatusPolicyViolation, "write timeout")
				return
			}
		}
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := s.agg.Query()
	if snap == nil {
		http.Error(w, "aggregator not running", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Paused bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	snap := s.agg.SetPaused(req.Paused)
	if snap == nil {
		http.Error(w, "aggregator not running", http.StatusServiceUnavailable)
		return
	}
	s.log.WithField("paused", req.Paused).Info("pause state changed")
	writeJSON(w, snap)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := s.agg.Clear()
	if snap == nil {
		http.Error(w, "aggregator not running", http.StatusServiceUnavailable)
		return
	}
	s.log.Info("statistics cleared")
	writeJSON(w, snap)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().WithError(err).Debug("response encode failed")
	}
}
