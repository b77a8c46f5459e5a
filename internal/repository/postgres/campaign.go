package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, COALESCE(html_content,''), status
		FROM campaigns
		WHERE id = $1
	`, id).Scan(&c.ID, &c.UserID, &c.HTMLContent, &c.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) UpdateCampaignStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) ListScheduled(ctx context.Context, f campaign.ScheduledFilter) ([]domain.ScheduledSend, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = campaign.DefaultSweepLimit
	}

	due := `(scheduled_at <= $2 OR scheduled_at IS NULL)`
	if f.StrictlyPast {
		due = `scheduled_at < $2`
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, user_id, stats_id, from_name, subject,
		       all_contacts, group_ids, scheduled_at, status
		FROM scheduled_sends
		WHERE status = $1 AND `+due+`
		ORDER BY scheduled_at ASC NULLS FIRST, created_at ASC
		LIMIT $3
	`, domain.ScheduledInProgress, f.Now, limit)
	if err != nil {
		return nil, fmt.Errorf("list scheduled sends: %w", err)
	}
	defer rows.Close()

	var out []domain.ScheduledSend
	for rows.Next() {
		var s domain.ScheduledSend
		var at sql.NullTime
		if err := rows.Scan(&s.ID, &s.CampaignID, &s.UserID, &s.StatsID, &s.FromName, &s.Subject,
			&s.AllContacts, pq.Array(&s.GroupIDs), &at, &s.Status); err != nil {
			return nil, fmt.Errorf("scan scheduled send: %w", err)
		}
		if at.Valid {
			t := at.Time
			s.ScheduledAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) MarkScheduledQueued(ctx context.Context, id string) error {
	return r.moveScheduled(ctx, id, domain.ScheduledQueued)
}

func (r *CampaignRepo) MarkScheduledFailed(ctx context.Context, id string) error {
	return r.moveScheduled(ctx, id, domain.ScheduledFailed)
}

// moveScheduled only leaves in_progress; a record already moved is ErrNotFound.
func (r *CampaignRepo) moveScheduled(ctx context.Context, id string, to domain.ScheduledSendStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_sends SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, to, domain.ScheduledInProgress)
	if err != nil {
		return fmt.Errorf("mark scheduled send %s: %w", to, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}
