package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/woozymasta/vitals/internal/models"
)

// WindowedRow is one player's aggregate for a time window.
type WindowedRow struct {
	LastPlayTime  *time.Time
	PlayerName    string
	WindowedTotal int64
	LifetimeTotal int64
	Online        bool
}

// IdleRanking returns stats rows with a last play time, longest idle first.
// Ties are ordered by player name, then server id. Names starting with any of
// excludePrefixes are skipped. An empty serverID ranks all servers.
func (r *Repository) IdleRanking(ctx context.Context, serverID string, excludePrefixes []string, limit int) ([]models.PlayerStats, error) {
	var (
		where []string
		args  []any
	)

	where = append(where, `s.last_play_time IS NOT NULL`)
	if serverID != "" {
		where = append(where, `s.server_id = ?`)
		args = append(args, serverID)
	}
	for _, prefix := range excludePrefixes {
		if prefix == "" {
			continue
		}
		where = append(where, `instr(s.player_name, ?) != 1`)
		args = append(args, prefix)
	}
	args = append(args, limit)

	query := `SELECT ` + statsColumns + ` FROM player_stats s
	WHERE ` + strings.Join(where, " AND ") + `
	ORDER BY s.last_play_time ASC, s.player_name ASC, s.server_id ASC
	LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query idle ranking: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.PlayerStats{}
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan idle ranking: %w", err)
		}
		out = append(out, st)
	}

	return out, rows.Err()
}

// WindowedRanking sums closed session durations with join_time at or after since,
// grouped by player across servers, longest first with ties by player name.
// Each row carries the player's lifetime total over all servers and whether any
// session of the player is open.
func (r *Repository) WindowedRanking(ctx context.Context, since time.Time, limit int) ([]WindowedRow, error) {
	rows, err := r.db.QueryContext(ctx, `
	WITH windowed AS (
		SELECT player_name, SUM(duration) AS total
		FROM player_sessions
		WHERE leave_time IS NOT NULL AND join_time >= ?
		GROUP BY player_name
	)
	SELECT
		w.player_name,
		w.total,
		COALESCE((SELECT SUM(total_play_time) FROM player_stats s WHERE s.player_name = w.player_name), 0),
		(SELECT MAX(last_play_time) FROM player_stats s WHERE s.player_name = w.player_name),
		EXISTS (SELECT 1 FROM player_sessions o WHERE o.player_name = w.player_name AND o.leave_time IS NULL)
	FROM windowed w
	ORDER BY w.total DESC, w.player_name ASC
	LIMIT ?`,
		since.Unix(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query windowed ranking: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []WindowedRow{}
	for rows.Next() {
		var (
			row      WindowedRow
			lastPlay sql.NullInt64
		)
		if err := rows.Scan(&row.PlayerName, &row.WindowedTotal, &row.LifetimeTotal, &lastPlay, &row.Online); err != nil {
			return nil, fmt.Errorf("scan windowed ranking: %w", err)
		}
		row.LastPlayTime = fromUnix(lastPlay)
		out = append(out, row)
	}

	return out, rows.Err()
}
