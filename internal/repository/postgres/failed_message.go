package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// FailedMessageRepo implements failures.Store with COPY.
type FailedMessageRepo struct{ db *sql.DB }

// NewFailedMessageRepo creates a Postgres-backed failure store.
func NewFailedMessageRepo(db *sql.DB) *FailedMessageRepo { return &FailedMessageRepo{db: db} }

// InsertFailed writes all records in one transaction.
func (r *FailedMessageRepo) InsertFailed(ctx context.Context, msgs []domain.FailedMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn("failed_messages",
		"campaign_id", "email", "payload", "created_at"))
	if err != nil {
		return fmt.Errorf("prepare COPY: %w", err)
	}

	for _, m := range msgs {
		payload, err := json.Marshal(m.Payload)
		if err != nil {
			stmt.Close()
			return fmt.Errorf("marshal payload: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, m.CampaignID, m.Payload.Email, string(payload), m.CreatedAt); err != nil {
			stmt.Close()
			return fmt.Errorf("copy failed message: %w", err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush COPY: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close COPY: %w", err)
	}
	return txn.Commit()
}
