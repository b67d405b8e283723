package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/woozymasta/vitals/internal/models"
)

const statsColumns = `s.server_id, s.player_name, s.total_play_time, s.total_sessions, s.last_play_time`

// openExists is true when the stats row's player has an open session on the same server.
const openExists = `EXISTS (
	SELECT 1 FROM player_sessions o
	WHERE o.server_id = s.server_id AND o.player_name = s.player_name AND o.leave_time IS NULL
)`

func scanStats(row rowScanner, extra ...any) (models.PlayerStats, error) {
	var (
		st       models.PlayerStats
		lastPlay sql.NullInt64
	)
	dest := append([]any{&st.ServerID, &st.PlayerName, &st.TotalPlayTime, &st.TotalSessions, &lastPlay}, extra...)
	if err := row.Scan(dest...); err != nil {
		return st, err
	}
	st.LastPlayTime = fromUnix(lastPlay)

	return st, nil
}

// Stats returns stats rows with the current status, for one server or all servers
// when serverID is empty. Rows are ordered by total play time, longest first.
func (r *Repository) Stats(ctx context.Context, serverID string) ([]models.PlayerStatsView, error) {
	query := `SELECT ` + statsColumns + `, ` + openExists + ` FROM player_stats s`
	var args []any
	if serverID != "" {
		query += ` WHERE s.server_id = ?`
		args = append(args, serverID)
	}
	query += ` ORDER BY s.total_play_time DESC, s.player_name, s.server_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.PlayerStatsView{}
	for rows.Next() {
		var open bool
		st, err := scanStats(rows, &open)
		if err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		out = append(out, models.PlayerStatsView{PlayerStats: st, CurrentStatus: onlineStatus(open)})
	}

	return out, rows.Err()
}

// PlayerStats returns the stats rows of one player on every server they played, by server id.
func (r *Repository) PlayerStats(ctx context.Context, player string) ([]models.PlayerStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+statsColumns+` FROM player_stats s WHERE s.player_name = ? ORDER BY s.server_id`,
		player,
	)
	if err != nil {
		return nil, fmt.Errorf("query player stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.PlayerStats{}
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan player stats: %w", err)
		}
		out = append(out, st)
	}

	return out, rows.Err()
}

// PlayerOnline reports whether the player has an open session on any server.
func (r *Repository) PlayerOnline(ctx context.Context, player string) (bool, error) {
	var open bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM player_sessions WHERE player_name = ? AND leave_time IS NULL)`,
		player,
	).Scan(&open)
	if err != nil {
		return false, fmt.Errorf("query player status: %w", err)
	}

	return open, nil
}
