package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft      CampaignStatus = "draft"
	CampaignScheduled  CampaignStatus = "scheduled"
	CampaignInProgress CampaignStatus = "in_progress"
	CampaignQueued     CampaignStatus = "queued"
	CampaignProcessed  CampaignStatus = "processed"
	CampaignFailed     CampaignStatus = "failed"
)

// Campaign is the email creative being dispatched. The dispatch core only
// reads ID and HTMLContent; Status is changed by the scheduled sweep.
type Campaign struct {
	ID          string         `json:"id" db:"id"`
	UserID      string         `json:"user_id,omitempty" db:"user_id"`
	HTMLContent string         `json:"htmlContent" db:"html_content"`
	Status      CampaignStatus `json:"status,omitempty" db:"status"`
}

// IsTerminal returns true if the campaign has already been handed to the queue.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignQueued || c.Status == CampaignProcessed
}

// Contact is a single recipient owned by a user.
type Contact struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`
	Email  string `json:"email" db:"email"`
	Active bool   `json:"active" db:"active"`
}

// Eligible reports whether the contact may receive campaigns.
func (c Contact) Eligible() bool {
	return c.Active && c.Email != ""
}

// Group is a user-defined set of contacts.
type Group struct {
	ID         string   `json:"id" db:"id"`
	UserID     string   `json:"user_id" db:"user_id"`
	ContactIDs []string `json:"contact_ids" db:"contact_ids"`
}

// ScheduledSendStatus enumerates the states of a scheduled-send record.
type ScheduledSendStatus string

const (
	ScheduledInProgress ScheduledSendStatus = "in_progress"
	ScheduledQueued     ScheduledSendStatus = "queued"
	// ScheduledFailed records can never be dispatched as stored and are
	// no longer picked up by sweeps.
	ScheduledFailed ScheduledSendStatus = "failed"
)

// ScheduledSend is a persisted request to dispatch a campaign at (or after)
// ScheduledAt. A nil ScheduledAt means "as soon as possible".
type ScheduledSend struct {
	ID          string              `json:"id" db:"id"`
	CampaignID  string              `json:"campaign_id" db:"campaign_id"`
	UserID      string              `json:"user_id" db:"user_id"`
	StatsID     string              `json:"stats_id" db:"stats_id"`
	FromName    string              `json:"from_name" db:"from_name"`
	Subject     string              `json:"subject" db:"subject"`
	AllContacts bool                `json:"all_contacts" db:"all_contacts"`
	GroupIDs    []string            `json:"group_ids" db:"group_ids"`
	ScheduledAt *time.Time          `json:"scheduled_at" db:"scheduled_at"`
	Status      ScheduledSendStatus `json:"status" db:"status"`
}

// Due reports whether the record should be dispatched at now.
// When strict is false an unset ScheduledAt counts as due.
func (s ScheduledSend) Due(now time.Time, strict bool) bool {
	if s.ScheduledAt == nil {
		return !strict
	}
	if strict {
		return s.ScheduledAt.Before(now)
	}
	return !s.ScheduledAt.After(now)
}
