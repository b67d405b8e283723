package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/vitals/internal/apierr"
	"github.com/woozymasta/vitals/internal/collector"
	"github.com/woozymasta/vitals/internal/ledger"
	"github.com/woozymasta/vitals/internal/models"
)

// TransportHTTP tags heartbeats received over HTTP.
const TransportHTTP = "http"

// leaveResponse reports whether a leave matched an open session.
type leaveResponse struct {
	Session *models.PlayerSession `json:"session,omitempty"`
	Status  string                `json:"status"`
	Matched bool                  `json:"matched"`
}

// handleServerStatus ingests one agent heartbeat.
// The whole snapshot of the server is replaced; the sender's clock is ignored.
func (s *Server) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	var doc models.Document
	if err := s.decode(w, r, &doc); err != nil {
		writeError(w, r, err)
		return
	}

	meta := collector.Meta{
		RemoteAddr: GetRealIP(r, s.trustProxy),
		Transport:  TransportHTTP,
	}
	if _, err := s.collector.Receive(r.Context(), doc, meta); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, success)
}

// handleSessionJoin opens a session for the player.
func (s *Server) handleSessionJoin(w http.ResponseWriter, r *http.Request) {
	var ev models.SessionEvent
	if err := s.decode(w, r, &ev); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := s.ledger.OnJoin(r.Context(), ev.ServerID, ev.ServerName, ev.PlayerName)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Session models.PlayerSession `json:"session"`
		Status  string               `json:"status"`
	}{Session: session, Status: success.Status})
}

// handleSessionLeave closes the player's open session.
// A leave without an open session is not an error: it answers 200 with matched=false.
func (s *Server) handleSessionLeave(w http.ResponseWriter, r *http.Request) {
	var ev models.SessionEvent
	if err := s.decode(w, r, &ev); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := s.ledger.OnLeave(r.Context(), ev.ServerID, ev.PlayerName)
	switch {
	case errors.Is(err, ledger.ErrNoOpenSession):
		log.Debug().
			Str("server_id", ev.ServerID).
			Str("player", ev.PlayerName).
			Msg("Leave did not match an open session")
		writeJSON(w, http.StatusOK, leaveResponse{Status: success.Status})
	case err != nil:
		writeError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, leaveResponse{Status: success.Status, Matched: true, Session: session})
	}
}

// decode reads a size limited JSON body into v.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierr.New(http.StatusRequestEntityTooLarge, apierr.CodeInvalidPayload, "payload exceeds %d bytes", tooLarge.Limit)
		}
		return apierr.Validation(apierr.CodeInvalidPayload, "invalid JSON payload")
	}

	return nil
}
