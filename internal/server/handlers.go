package server

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/vitals/internal/apierr"
	"github.com/woozymasta/vitals/internal/vars"
)

// onlineResponse lists the real players currently in a session.
type onlineResponse struct {
	ServerID string   `json:"server_id,omitempty"`
	Players  []string `json:"players"`
	Count    int      `json:"count"`
}

// handleServers returns every known server with its derived status, keyed by server id.
func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.collector.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, servers)
}

// handleServer returns one server.
func (s *Server) handleServer(w http.ResponseWriter, r *http.Request) {
	view, err := s.collector.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// handleDeleteServer removes a server snapshot and closes its open sessions.
// Protected by AdminAuthMiddleware.
func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.collector.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	closed, err := s.ledger.CloseServer(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().Str("server_id", id).Int("sessions_closed", len(closed)).Msg("Server deleted manually")
	writeJSON(w, http.StatusOK, statusResponse{Status: success.Status, Message: "server deleted"})
}

// handleServerPlayers returns the player stats of one server.
func (s *Server) handleServerPlayers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.board.Players(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rows)
}

// handlePlayers returns the player stats of all servers.
func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.board.Players(r.Context(), "")
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rows)
}

// handlePlayer returns one player's stats and recent sessions.
func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	detail, err := s.board.PlayerDetail(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// handleOnline lists real players with an open session, or the real players of the
// latest heartbeats with source=snapshot.
// Query params: ?server_id=eu-1&source=snapshot (all optional)
func (s *Server) handleOnline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	serverID := q.Get("server_id")

	var (
		players []string
		err     error
	)
	switch q.Get("source") {
	case "", "sessions":
		players, err = s.board.CurrentRealPlayers(r.Context(), serverID)
	case "snapshot":
		players, err = s.collector.RealPlayers(r.Context(), serverID)
	default:
		err = apierr.Validation(apierr.CodeInvalidPayload, "invalid source: %q", q.Get("source"))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, onlineResponse{ServerID: serverID, Players: players, Count: len(players)})
}

// handleBots lists the bots of the latest heartbeats of one server, or of every
// online server when no id is given.
func (s *Server) handleBots(w http.ResponseWriter, r *http.Request) {
	serverID := r.PathValue("id")

	bots, err := s.collector.Bots(r.Context(), serverID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, onlineResponse{ServerID: serverID, Players: bots, Count: len(bots)})
}

// handleIdle returns the idle leaderboard.
// Query params: ?server_id=eu-1&exclude_bots=true&limit=10 (all optional)
func (s *Server) handleIdle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	excludeBots := false
	if v := q.Get("exclude_bots"); v != "" {
		excludeBots, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, apierr.Validation(apierr.CodeInvalidPayload, "invalid exclude_bots: %q", v))
			return
		}
	}

	board, err := s.board.IdleRanking(r.Context(), q.Get("server_id"), excludeBots, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, board)
}

// handleWeekly returns the play time ranking of the last 7 days.
func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	board, err := s.board.Weekly(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, board)
}

// handleMonthly returns the play time ranking of the last 30 days.
func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	board, err := s.board.Monthly(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, board)
}

// handleTest is a liveness probe.
func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	log.Debug().Str("ip", GetRealIP(r, s.trustProxy)).Msg("Liveness probe")
	writeJSON(w, http.StatusOK, statusResponse{Status: success.Status, Message: "API is working"})
}

// handleReady answers 200 when the database is reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeError(w, r, &apierr.Error{
				Status:  http.StatusServiceUnavailable,
				Code:    apierr.CodeStorage,
				Message: "database unavailable",
				Cause:   err,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, success)
}

// handleVersion returns the build information.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vars.Info())
}

// queryInt parses an optional non-negative integer query parameter; empty is 0.
func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apierr.Validation(apierr.CodeInvalidPayload, "invalid limit: %q", v)
	}

	return n, nil
}
