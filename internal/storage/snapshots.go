package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/vitals/internal/models"
)

// LoadSnapshots returns every stored snapshot document keyed by server id.
// Rows whose document cannot be decoded are skipped.
func (r *Repository) LoadSnapshots(ctx context.Context) (map[string]models.Document, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT server_id, document FROM server_snapshots`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]models.Document)
	for rows.Next() {
		var (
			id  string
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}

		var doc models.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			log.Warn().Err(err).Str("server_id", id).Msg("Skipping undecodable snapshot")
			continue
		}
		out[id] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	return out, nil
}

// PutSnapshot replaces the document stored under id in a single upsert.
func (r *Repository) PutSnapshot(ctx context.Context, id string, doc models.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", id, err)
	}

	_, err = r.db.ExecContext(ctx, `
	INSERT INTO server_snapshots (server_id, document, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(server_id) DO UPDATE SET
		document   = excluded.document,
		updated_at = excluded.updated_at`,
		id, string(raw), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", id, err)
	}

	return nil
}

// DeleteSnapshot removes the document stored under id; a missing id is not an error.
func (r *Repository) DeleteSnapshot(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM server_snapshots WHERE server_id = ?`, id); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}

	return nil
}
