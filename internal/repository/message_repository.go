package repository

import (
	"context"
	"database/sql"

	"github.com/HugoP8/whazaaa/internal/model"
)

type MessageRepositoryInterface interface {
	Create(ctx context.Context, msg *model.Message) error
	ListByCampaign(ctx context.Context, campaignID int64, limit int) ([]*model.Message, error)
}

type MessageRepository struct {
	DB *sql.DB
}

// Create appends one delivery outcome row.
func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) error {
	query := `
        INSERT INTO messages (campaign_id, recipient, status, message_id, error, sequence_index)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `
	return r.DB.QueryRowContext(
		ctx,
		query,
		msg.CampaignID,
		msg.Recipient,
		msg.Status,
		msg.MessageID,
		msg.Error,
		msg.SequenceIndex,
	).Scan(&msg.ID, &msg.CreatedAt)
}

// ListByCampaign returns the latest messages of a campaign.
func (r *MessageRepository) ListByCampaign(ctx context.Context, campaignID int64, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
        SELECT id, campaign_id, recipient, status, message_id, error, sequence_index, created_at
        FROM messages
        WHERE campaign_id = $1
        ORDER BY created_at DESC, sequence_index DESC
        LIMIT $2
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []*model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(
			&m.ID,
			&m.CampaignID,
			&m.Recipient,
			&m.Status,
			&m.MessageID,
			&m.Error,
			&m.SequenceIndex,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
