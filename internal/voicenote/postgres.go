package voicenote

import (
	"context"
	"database/sql"
	"fmt"

	"callbridge/pkg/utils"
)

// Schema creates the mirror table and its listing index.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS voice_notes (
  id text PRIMARY KEY,
  call_id text NOT NULL,
  caller_number text NOT NULL,
  caller_name text NOT NULL DEFAULT '',
  language text NOT NULL,
  recording_id text NOT NULL DEFAULT '',
  audio_file text NOT NULL,
  duration_seconds int NOT NULL,
  transcript text NOT NULL DEFAULT '',
  status text NOT NULL,
  created_at timestamptz NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS voice_notes_created_at_idx ON voice_notes (created_at DESC)`,
}

// PostgresIndex mirrors the note index into Postgres for querying. The JSONL
// index stays the source of truth.
type PostgresIndex struct {
	db *sql.DB
}

func NewPostgresIndex(db *sql.DB) *PostgresIndex { return &PostgresIndex{db: db} }

// Migrate creates the mirror table if it does not exist.
func (p *PostgresIndex) Migrate(ctx context.Context) error {
	if err := utils.EnsureSchema(ctx, p.db, Schema...); err != nil {
		return fmt.Errorf("voicenote: migrate: %w", err)
	}
	return nil
}

const upsertNote = `INSERT INTO voice_notes
  (id, call_id, caller_number, caller_name, language, recording_id, audio_file, duration_seconds, transcript, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET transcript = EXCLUDED.transcript, status = EXCLUDED.status`

func (p *PostgresIndex) Save(ctx context.Context, n Note) error {
	if n.ID == "" || n.CallerNumber == "" {
		return ErrInvalidNote
	}
	return utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, upsertNote,
			n.ID, n.CallID, n.CallerNumber, n.CallerName, n.Language, n.RecordingID,
			n.AudioFile, n.DurationSeconds, n.Transcript, string(n.Status), n.CreatedAt)
		if err != nil {
			return fmt.Errorf("voicenote: postgres upsert: %w", err)
		}
		return nil
	})
}

const selectNotes = `SELECT id, call_id, caller_number, caller_name, language, recording_id, audio_file, duration_seconds, transcript, status, created_at
FROM voice_notes ORDER BY created_at DESC LIMIT $1`

// Recent lists up to limit notes, newest first.
func (p *PostgresIndex) Recent(ctx context.Context, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, selectNotes, limit)
	if err != nil {
		return nil, fmt.Errorf("voicenote: postgres query: %w", err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var n Note
		var status string
		if err := rows.Scan(&n.ID, &n.CallID, &n.CallerNumber, &n.CallerName, &n.Language, &n.RecordingID,
			&n.AudioFile, &n.DurationSeconds, &n.Transcript, &status, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("voicenote: postgres scan: %w", err)
		}
		n.Status = Status(status)
		out = append(out, n)
	}
	return out, rows.Err()
}
