package domain

import "time"

// AudienceSpec selects who receives a dispatch. It is implemented by
// AllContacts and Groups only.
type AudienceSpec interface {
	audienceSpec()
	// Mode is the wire name of the selection ("allContacts" or "groups").
	Mode() string
}

// AllContacts targets every active contact of the user.
type AllContacts struct{}

func (AllContacts) audienceSpec() {}

// Mode implements AudienceSpec.
func (AllContacts) Mode() string { return "allContacts" }

// Groups targets the contacts of the user's groups. An empty GroupIDs
// selects every group that has contacts.
type Groups struct {
	GroupIDs []string `json:"groupIds"`
}

func (Groups) audienceSpec() {}

// Mode implements AudienceSpec.
func (Groups) Mode() string { return "groups" }

// DispatchTarget is the immutable description of one dispatch run.
type DispatchTarget struct {
	CampaignID string
	UserID     string
	StatsID    string
	FromName   string
	Subject    string
	Audience   AudienceSpec
}

// RecipientPayload is the body of one queue message.
type RecipientPayload struct {
	Email string `json:"email"`
	HTML  string `json:"html"`
}

// FailedMessage records a payload that could not be enqueued after retries.
type FailedMessage struct {
	ID         int64            `json:"id" db:"id"`
	CampaignID string           `json:"campaign_id" db:"campaign_id"`
	Payload    RecipientPayload `json:"payload" db:"payload"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
}

// DispatchResult summarizes one run.
type DispatchResult struct {
	Success         bool   `json:"success"`
	CampaignID      string `json:"campaignId"`
	TotalRecipients int    `json:"totalRecipients"`
	ProcessedCount  int    `json:"processedCount"`
	FailedCount     int    `json:"failedCount"`
	DurationMs      int64  `json:"durationMs"`
	Message         string `json:"message,omitempty"`
}

// SentCount is the number of payloads accepted by the queue.
func (r DispatchResult) SentCount() int { return r.ProcessedCount }
