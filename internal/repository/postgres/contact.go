package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// ContactRepo implements audience.Store against PostgreSQL.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact store.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

const activeContact = `active = TRUE AND email IS NOT NULL AND email <> ''`

func (r *ContactRepo) CountActive(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT email) FROM contacts
		WHERE user_id = $1 AND `+activeContact, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active contacts: %w", err)
	}
	return n, nil
}

func (r *ContactRepo) ActiveEmails(ctx context.Context, userID string, offset, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT email FROM contacts
		WHERE user_id = $1 AND `+activeContact+`
		ORDER BY email
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list active emails: %w", err)
	}
	return scanEmails(rows)
}

func (r *ContactRepo) FindGroups(ctx context.Context, userID string, groupIDs []string) ([]domain.Group, error) {
	q := `
		SELECT id, user_id, contact_ids FROM contact_groups
		WHERE user_id = $1 AND cardinality(contact_ids) > 0`
	args := []interface{}{userID}
	if len(groupIDs) > 0 {
		q += ` AND id = ANY($2)`
		args = append(args, pq.Array(groupIDs))
	}
	q += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find groups: %w", err)
	}
	defer rows.Close()

	var out []domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.UserID, pq.Array(&g.ContactIDs)); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *ContactRepo) CountActiveByIDs(ctx context.Context, userID string, ids []string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM contacts
		WHERE user_id = $1 AND id = ANY($2) AND `+activeContact,
		userID, pq.Array(ids)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count group contacts: %w", err)
	}
	return n, nil
}

func (r *ContactRepo) ActiveEmailsByIDs(ctx context.Context, userID string, ids []string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT email FROM contacts
		WHERE user_id = $1 AND id = ANY($2) AND `+activeContact+`
		ORDER BY email
	`, userID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list group emails: %w", err)
	}
	return scanEmails(rows)
}

func scanEmails(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		out = append(out, email)
	}
	return out, rows.Err()
}
