/*
Package api
File: handlers.go
Description:
    HTTP handlers and the socket dispatch path.

    Reads and writes of artifact state never happen on the request
    goroutine: every handler hands a closure to the owner loop and waits
    for (or, on sockets, asynchronously sends) the result.

    Key Responsibilities:
    - Input bounding (DecodeRequest) before anything is queued
    - Deferring work onto the owner loop
    - Shaping Outcome / Snapshot replies
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/everforgeworks/galaxies-core/internal/game"
)

const requestTimeout = 5 * time.Second

// Server bundles everything the handlers need.
type Server struct {
	Catalog *game.Catalog
	Owner   *Owner
	Roster  *Roster
	Gateway *Gateway
	Hub     *Hub
	Logger  *slog.Logger
}

// Routes registers the HTTP and WebSocket endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/upgrades", s.HandleGetUpgrades)
	mux.HandleFunc("GET /api/artifact", s.HandleGetArtifact)
	mux.HandleFunc("POST /api/mutations", s.HandleMutation)
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(s.Hub, w, r)
	})
}

// HandleGetUpgrades returns the static upgrade catalog.
func (s *Server) HandleGetUpgrades(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Catalog.Upgrades)
}

// HandleGetArtifact returns the requesting player's artifact snapshot.
func (s *Server) HandleGetArtifact(w http.ResponseWriter, r *http.Request) {
	player := r.URL.Query().Get("player")
	if !ValidPlayer(player) {
		http.Error(w, "Invalid player", http.StatusBadRequest)
		return
	}

	var (
		snap  game.Snapshot
		found bool
	)
	err := s.run(r.Context(), player, func() {
		if a, ok := s.Roster.Locate(player); ok {
			snap, found = a.Snapshot(), true
		}
	})
	if err != nil {
		http.Error(w, "Server busy", busyStatus(err))
		return
	}
	if !found {
		http.Error(w, "No artifact equipped", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleMutation accepts one request Envelope over plain HTTP. The reply is
// the Outcome; gateway rejections are 200s with Status "rejected". A request
// that never reached the gateway (busy loop, timeout) is a 503 or 504 and
// was not applied.
func (s *Server) HandleMutation(w http.ResponseWriter, r *http.Request) {
	player := r.URL.Query().Get("player")
	if !ValidPlayer(player) {
		http.Error(w, "Invalid player", http.StatusBadRequest)
		return
	}
	frame, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxFrameBytes))
	if err != nil {
		http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
		return
	}
	req, err := DecodeRequest(frame)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, malformedOutcome(err))
		return
	}

	var out Outcome
	err = s.run(r.Context(), player, func() {
		out = s.Gateway.Handle(player, req)
	})
	if err != nil {
		writeJSON(w, busyStatus(err), busyOutcome(req, err))
		return
	}
	if out.Applied() {
		s.pushResync(player)
	}
	writeJSON(w, http.StatusOK, out)
}

// Dispatch handles one inbound socket frame from player. Replies go back
// through the hub; nothing here blocks the read pump.
func (s *Server) Dispatch(player string, frame []byte) {
	req, err := DecodeRequest(frame)
	if err != nil {
		s.send(player, TypeMutationOutcome, malformedOutcome(err))
		return
	}

	ok, reason := s.Owner.Submit(player, func() {
		out := s.Gateway.Handle(player, req)
		s.send(player, TypeMutationOutcome, out)
		if out.Applied() {
			s.sendResync(player)
		}
	})
	if !ok {
		s.send(player, TypeMutationOutcome, Outcome{
			RequestID: req.ID,
			Kind:      req.Kind,
			Status:    StatusRejected,
			Reason:    reason,
			Message:   "Server busy, try again",
		})
	}
}

// Connect equips player's artifact on the owner loop, issuing one on first
// connect, and waits for the result.
func (s *Server) Connect(ctx context.Context, player string) error {
	var equipErr error
	if err := s.run(ctx, player, func() {
		_, equipErr = s.Roster.Equip(player)
	}); err != nil {
		return err
	}
	return equipErr
}

// sendResync must run on the owner loop.
func (s *Server) sendResync(player string) {
	if a, ok := s.Roster.Locate(player); ok {
		s.send(player, TypeArtifactResync, a.Snapshot())
	}
}

// pushResync queues a resync from outside the owner loop.
func (s *Server) pushResync(player string) {
	if s.Hub == nil {
		return
	}
	s.Owner.Submit(player, func() { s.sendResync(player) })
}

func (s *Server) send(player, msgType string, payload any) {
	if s.Hub == nil {
		return
	}
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		s.Logger.Error("encode reply", slog.String("type", msgType), slog.String("error", err.Error()))
		return
	}
	s.Hub.SendTo(player, data)
}

func (s *Server) run(ctx context.Context, player string, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return s.Owner.Do(ctx, player, fn)
}

// busyOutcome describes a request the owner loop never ran.
func busyOutcome(req Request, err error) Outcome {
	out := Outcome{RequestID: req.ID, Kind: req.Kind, Status: StatusRejected}
	switch {
	case errors.Is(err, ErrAbandoned):
		out.Reason, out.Message = ReasonTimeout, "Timed out before the request ran; nothing was changed"
	case errors.Is(err, ErrQueueLimit):
		out.Reason, out.Message = ReasonQueueLimit, "Too many requests this step, try again"
	default:
		out.Reason, out.Message = ReasonQueueFull, "Server busy, try again"
	}
	return out
}

func busyStatus(err error) int {
	if errors.Is(err, ErrAbandoned) {
		return http.StatusGatewayTimeout
	}
	return http.StatusServiceUnavailable
}

func malformedOutcome(err error) Outcome {
	msg := "Malformed request"
	if !errors.Is(err, ErrMalformed) {
		msg = "Invalid request"
	}
	return Outcome{Status: StatusRejected, Reason: ReasonMalformed, Message: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
