package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/vitals/internal/apierr"
)

// statusResponse is the acknowledgement of ingress endpoints.
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

var success = statusResponse{Status: "success"}

// writeJSON writes v with the headers every API response carries.
func writeJSON(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("Access-Control-Allow-Origin", "*")

	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// writeError renders err as {"error", "code"}. Causes are logged, never sent.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apierr.As(err)

	ev := log.Debug()
	if e.Status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).
		Str("request_id", RequestID(r.Context())).
		Str("code", string(e.Code)).
		Str("path", r.URL.Path).
		Msg("Request failed")

	writeJSON(w, e.Status, e)
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, apierr.NotFound("path %s not found", r.URL.Path))
}
