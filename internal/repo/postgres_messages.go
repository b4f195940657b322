package repo

import (
	"context"
	"database/sql"

	"github.com/LeventeLantos/notification-dispatcher/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS outbound_messages (
	id                TEXT PRIMARY KEY,
	recipient_phone   TEXT NOT NULL,
	content           TEXT NOT NULL,
	kind              TEXT NOT NULL,
	batch_id          TEXT,
	status            TEXT NOT NULL,
	attempt_count     INTEGER NOT NULL DEFAULT 0,
	last_error        TEXT,
	remote_message_id TEXT,
	sent_at           TIMESTAMPTZ,
	enqueued_at       TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS outbound_messages_sent_at_idx
	ON outbound_messages (sent_at DESC) WHERE status = 'sent';
`

type PostgresMessageRepo struct {
	db *sql.DB
}

func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// EnsureSchema creates the history table when it does not exist yet.
func (r *PostgresMessageRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

func (r *PostgresMessageRepo) MarkSent(ctx context.Context, msg model.OutboundMessage, remoteMessageID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbound_messages
			(id, recipient_phone, content, kind, batch_id, status, attempt_count,
			 remote_message_id, sent_at, enqueued_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'sent', $6, $7, now(), $8, now())
		ON CONFLICT (id) DO UPDATE
		SET status = 'sent',
		    attempt_count = EXCLUDED.attempt_count,
		    remote_message_id = EXCLUDED.remote_message_id,
		    last_error = NULL,
		    sent_at = now(),
		    updated_at = now()
	`, msg.ID, msg.Recipient, msg.Body, string(msg.Kind), nullString(msg.BatchID),
		msg.Attempts, remoteMessageID, msg.EnqueuedAt.UTC())
	return err
}

func (r *PostgresMessageRepo) MarkFailed(ctx context.Context, msg model.OutboundMessage, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbound_messages
			(id, recipient_phone, content, kind, batch_id, status, attempt_count,
			 last_error, enqueued_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'failed', $6, $7, $8, now())
		ON CONFLICT (id) DO UPDATE
		SET status = 'failed',
		    attempt_count = EXCLUDED.attempt_count,
		    last_error = EXCLUDED.last_error,
		    updated_at = now()
	`, msg.ID, msg.Recipient, msg.Body, string(msg.Kind), nullString(msg.BatchID),
		msg.Attempts, reason, msg.EnqueuedAt.UTC())
	return err
}

func (r *PostgresMessageRepo) ListSent(ctx context.Context, limit, offset int) ([]model.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, recipient_phone, content, kind, batch_id, status, attempt_count,
		       last_error, remote_message_id, sent_at, enqueued_at, updated_at
		FROM outbound_messages
		WHERE status = 'sent'
		ORDER BY sent_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DeliveryRecord
	for rows.Next() {
		var m model.DeliveryRecord
		var kind, status string
		var batchID, lastErr, remoteID sql.NullString
		var sentAt sql.NullTime

		if err := rows.Scan(
			&m.ID,
			&m.Recipient,
			&m.Body,
			&kind,
			&batchID,
			&status,
			&m.Attempts,
			&lastErr,
			&remoteID,
			&sentAt,
			&m.EnqueuedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, err
		}

		m.Kind = model.Kind(kind)
		m.Status = model.DeliveryStatus(status)

		if batchID.Valid {
			s := batchID.String
			m.BatchID = &s
		}
		if lastErr.Valid {
			s := lastErr.String
			m.LastError = &s
		}
		if remoteID.Valid {
			s := remoteID.String
			m.RemoteMessageID = &s
		}
		if sentAt.Valid {
			t := sentAt.Time
			m.SentAt = &t
		}

		out = append(out, m)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
