// internal/model/message.go
package model

import "time"

type OutcomeKind string

const (
	OutcomeSent   OutcomeKind = "SENT"
	OutcomeFailed OutcomeKind = "FAILED"
)

// DeliveryOutcome is the result of one send attempt within a dispatch run.
type DeliveryOutcome struct {
	Recipient         string      `json:"recipient"`
	Kind              OutcomeKind `json:"status"`
	ProviderMessageID string      `json:"message_id,omitempty"`
	Error             string      `json:"error,omitempty"`
	SequenceIndex     int         `json:"sequence_index"`
}

// Message is a persisted delivery outcome.
type Message struct {
	ID            int64       `db:"id" json:"id"`
	CampaignID    int64       `db:"campaign_id" json:"campaign_id"`
	Recipient     string      `db:"recipient" json:"recipient"`
	Status        OutcomeKind `db:"status" json:"status"`
	MessageID     *string     `db:"message_id" json:"message_id,omitempty"`
	Error         *string     `db:"error" json:"error,omitempty"`
	SequenceIndex int         `db:"sequence_index" json:"sequence_index"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

// MessageFromOutcome maps an outcome onto its storage row.
func MessageFromOutcome(campaignID int64, o DeliveryOutcome) *Message {
	m := &Message{
		CampaignID:    campaignID,
		Recipient:     o.Recipient,
		Status:        o.Kind,
		SequenceIndex: o.SequenceIndex,
	}
	if o.ProviderMessageID != "" {
		id := o.ProviderMessageID
		m.MessageID = &id
	}
	if o.Error != "" {
		e := o.Error
		m.Error = &e
	}
	return m
}
