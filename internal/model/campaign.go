// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignPending    CampaignStatus = "PENDING"
	CampaignInProgress CampaignStatus = "IN_PROGRESS"
	CampaignCompleted  CampaignStatus = "COMPLETED"
	CampaignFailed     CampaignStatus = "FAILED"
)

// Terminal reports whether no further transitions are allowed.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignFailed
}

type Campaign struct {
	ID              int64          `db:"id" json:"id"`
	UserID          int64          `db:"user_id" json:"user_id"`
	Name            string         `db:"name" json:"name"`
	Message         string         `db:"message" json:"message"`
	MediaPath       *string        `db:"media_path" json:"media_path,omitempty"`
	Status          CampaignStatus `db:"status" json:"status"`
	TotalRecipients int            `db:"total_recipients" json:"total_recipients"`
	SentCount       int            `db:"sent_count" json:"sent_count"`
	Error           *string        `db:"error" json:"error,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	CompletedAt     *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// CampaignUpdate is a partial update; nil fields are left untouched.
type CampaignUpdate struct {
	Status          *CampaignStatus
	TotalRecipients *int
	SentCount       *int
	Error           *string
	CompletedAt     *time.Time
}

// CampaignSummary is a list row with message counters.
type CampaignSummary struct {
	Campaign
	MessageCount  int `db:"message_count" json:"message_count"`
	SentCountReal int `db:"sent_count_real" json:"sent_count_real"`
}
