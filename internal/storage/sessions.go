package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/woozymasta/vitals/internal/models"
)

// ErrNoOpenSession is returned when a leave has no matching open session.
var ErrNoOpenSession = errors.New("no open session")

const sessionColumns = `id, server_id, server_name, player_name, join_time, leave_time, duration`

func scanSession(row rowScanner) (models.PlayerSession, error) {
	var (
		s         models.PlayerSession
		joinTime  int64
		leaveTime sql.NullInt64
		duration  sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.ServerID, &s.ServerName, &s.PlayerName, &joinTime, &leaveTime, &duration); err != nil {
		return s, err
	}

	s.JoinTime = time.Unix(joinTime, 0).UTC()
	s.LeaveTime = fromUnix(leaveTime)
	if duration.Valid {
		d := duration.Int64
		s.Duration = &d
	}

	return s, nil
}

func scanSessions(rows *sql.Rows) ([]models.PlayerSession, error) {
	defer func() { _ = rows.Close() }()

	out := []models.PlayerSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}

	return out, rows.Err()
}

// OpenSession inserts an open session for the player at the given time.
// An already open session of the same player on the same server is closed at that
// time first, in the same transaction; it is returned as replaced.
func (r *Repository) OpenSession(ctx context.Context, serverID, serverName, player string, at time.Time) (opened models.PlayerSession, replaced *models.PlayerSession, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return opened, nil, fmt.Errorf("begin join: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := findOpen(ctx, tx, serverID, player)
	if err != nil {
		return opened, nil, err
	}
	if prev != nil {
		closed, err := closeSession(ctx, tx, *prev, at)
		if err != nil {
			return opened, nil, err
		}
		replaced = &closed
	}

	res, err := tx.ExecContext(ctx, `
	INSERT INTO player_sessions (server_id, server_name, player_name, join_time)
	VALUES (?, ?, ?, ?)`,
		serverID, serverName, player, at.Unix(),
	)
	if err != nil {
		return opened, nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return opened, nil, fmt.Errorf("session id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return opened, nil, fmt.Errorf("commit join: %w", err)
	}

	opened = models.PlayerSession{
		ID:         id,
		ServerID:   serverID,
		ServerName: serverName,
		PlayerName: player,
		JoinTime:   time.Unix(at.Unix(), 0).UTC(),
	}

	return opened, replaced, nil
}

// CloseSession closes the open session of the player on the server and folds it
// into the player's stats. Returns ErrNoOpenSession when nothing is open.
func (r *Repository) CloseSession(ctx context.Context, serverID, player string, at time.Time) (models.PlayerSession, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.PlayerSession{}, fmt.Errorf("begin leave: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	open, err := findOpen(ctx, tx, serverID, player)
	if err != nil {
		return models.PlayerSession{}, err
	}
	if open == nil {
		return models.PlayerSession{}, ErrNoOpenSession
	}

	closed, err := closeSession(ctx, tx, *open, at)
	if err != nil {
		return models.PlayerSession{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.PlayerSession{}, fmt.Errorf("commit leave: %w", err)
	}

	return closed, nil
}

// CloseServerSessions closes every open session of one server at the given time.
func (r *Repository) CloseServerSessions(ctx context.Context, serverID string, at time.Time) ([]models.PlayerSession, error) {
	return r.closeMatching(ctx, `server_id = ?`, []any{serverID}, at)
}

// CloseSessionsOpenedBefore closes every open session that joined before cutoff.
func (r *Repository) CloseSessionsOpenedBefore(ctx context.Context, cutoff, at time.Time) ([]models.PlayerSession, error) {
	return r.closeMatching(ctx, `join_time < ?`, []any{cutoff.Unix()}, at)
}

func (r *Repository) closeMatching(ctx context.Context, where string, args []any, at time.Time) ([]models.PlayerSession, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin close: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM player_sessions WHERE leave_time IS NULL AND `+where+` ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query open sessions: %w", err)
	}
	open, err := scanSessions(rows)
	if err != nil {
		return nil, err
	}

	closed := make([]models.PlayerSession, 0, len(open))
	for _, s := range open {
		c, err := closeSession(ctx, tx, s, at)
		if err != nil {
			return nil, err
		}
		closed = append(closed, c)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit close: %w", err)
	}

	return closed, nil
}

// OpenSessions lists open sessions of one server, or of all servers when serverID is empty.
func (r *Repository) OpenSessions(ctx context.Context, serverID string) ([]models.PlayerSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM player_sessions WHERE leave_time IS NULL`
	var args []any
	if serverID != "" {
		query += ` AND server_id = ?`
		args = append(args, serverID)
	}
	query += ` ORDER BY player_name, server_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query open sessions: %w", err)
	}

	return scanSessions(rows)
}

// PlayerSessions returns up to limit closed sessions of a player, newest first.
func (r *Repository) PlayerSessions(ctx context.Context, player string, limit int) ([]models.PlayerSession, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+sessionColumns+`
	FROM player_sessions
	WHERE player_name = ? AND leave_time IS NOT NULL
	ORDER BY join_time DESC, id DESC
	LIMIT ?`,
		player, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query player sessions: %w", err)
	}

	return scanSessions(rows)
}

func findOpen(ctx context.Context, tx *sql.Tx, serverID, player string) (*models.PlayerSession, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM player_sessions
		WHERE server_id = ? AND player_name = ? AND leave_time IS NULL`,
		serverID, player,
	)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}

	return &s, nil
}

// closeSession stamps leave_time and duration and adds the duration to the stats row.
// A leave earlier than the join is clamped to the join time.
func closeSession(ctx context.Context, tx *sql.Tx, s models.PlayerSession, at time.Time) (models.PlayerSession, error) {
	join := s.JoinTime.Unix()
	leave := at.Unix()
	if leave < join {
		leave = join
	}
	duration := leave - join

	if _, err := tx.ExecContext(ctx,
		`UPDATE player_sessions SET leave_time = ?, duration = ? WHERE id = ?`,
		leave, duration, s.ID,
	); err != nil {
		return s, fmt.Errorf("close session %d: %w", s.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `
	INSERT INTO player_stats (server_id, player_name, total_play_time, total_sessions, last_play_time)
	VALUES (?, ?, ?, 1, ?)
	ON CONFLICT(server_id, player_name) DO UPDATE SET
		total_play_time = player_stats.total_play_time + excluded.total_play_time,
		total_sessions  = player_stats.total_sessions + 1,
		last_play_time  = MAX(COALESCE(player_stats.last_play_time, 0), excluded.last_play_time)`,
		s.ServerID, s.PlayerName, duration, leave,
	); err != nil {
		return s, fmt.Errorf("update stats for %s on %s: %w", s.PlayerName, s.ServerID, err)
	}

	leaveTime := time.Unix(leave, 0).UTC()
	s.LeaveTime = &leaveTime
	s.Duration = &duration

	return s, nil
}
