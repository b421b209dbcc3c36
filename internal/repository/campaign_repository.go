package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	appErrors "github.com/HugoP8/whazaaa/internal/errors"
	"github.com/HugoP8/whazaaa/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	Update(ctx context.Context, id int64, u model.CampaignUpdate) error
	GetByID(ctx context.Context, id, userID int64) (*model.Campaign, error)
	ListByUser(ctx context.Context, userID int64) ([]*model.CampaignSummary, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.Status == "" {
		c.Status = model.CampaignPending
	}
	query := `
        INSERT INTO campaigns (user_id, name, message, media_path, status, scheduled_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        RETURNING id, created_at
    `
	return r.DB.QueryRowContext(ctx, query, c.UserID, c.Name, c.Message, c.MediaPath, c.Status).
		Scan(&c.ID, &c.CreatedAt)
}

// Update applies the non-nil fields of u. Campaigns in a terminal status
// are never modified.
func (r *CampaignRepository) Update(ctx context.Context, id int64, u model.CampaignUpdate) error {
	fields := []string{}
	args := []interface{}{}
	argPos := 1

	set := func(column string, value interface{}) {
		fields = append(fields, fmt.Sprintf("%s=$%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if u.Status != nil {
		set("status", *u.Status)
	}
	if u.TotalRecipients != nil {
		set("total_recipients", *u.TotalRecipients)
	}
	if u.SentCount != nil {
		set("sent_count", *u.SentCount)
	}
	if u.Error != nil {
		set("error", *u.Error)
	}
	if u.CompletedAt != nil {
		set("completed_at", *u.CompletedAt)
	}
	if len(fields) == 0 {
		return nil
	}

	args = append(args, id, model.CampaignCompleted, model.CampaignFailed)
	query := fmt.Sprintf(
		`UPDATE campaigns SET %s WHERE id=$%d AND status NOT IN ($%d, $%d)`,
		strings.Join(fields, ", "), argPos, argPos+1, argPos+2,
	)

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var status model.CampaignStatus
		err := r.DB.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id=$1`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.NewCampaignNotFound(id)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("campaign %d is %s: %w", id, status, appErrors.ErrCampaignFinished)
	}
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id, userID int64) (*model.Campaign, error) {
	query := `
        SELECT id, user_id, name, message, media_path, status, total_recipients, sent_count, error, created_at, completed_at
        FROM campaigns WHERE id=$1 AND user_id=$2
    `
	var c model.Campaign
	err := r.DB.QueryRowContext(ctx, query, id, userID).Scan(
		&c.ID, &c.UserID, &c.Name, &c.Message, &c.MediaPath, &c.Status,
		&c.TotalRecipients, &c.SentCount, &c.Error, &c.CreatedAt, &c.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

// ListByUser returns the user's campaigns newest first, with message counters.
func (r *CampaignRepository) ListByUser(ctx context.Context, userID int64) ([]*model.CampaignSummary, error) {
	query := `
        SELECT c.id, c.user_id, c.name, c.message, c.media_path, c.status, c.total_recipients,
               c.sent_count, c.error, c.created_at, c.completed_at,
               COUNT(m.id) AS message_count,
               COUNT(CASE WHEN m.status = 'SENT' THEN 1 END) AS sent_count_real
        FROM campaigns c
        LEFT JOIN messages m ON c.id = m.campaign_id
        WHERE c.user_id = $1
        GROUP BY c.id
        ORDER BY c.created_at DESC
    `
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.CampaignSummary{}
	for rows.Next() {
		s := &model.CampaignSummary{}
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.Name, &s.Message, &s.MediaPath, &s.Status, &s.TotalRecipients,
			&s.SentCount, &s.Error, &s.CreatedAt, &s.CompletedAt,
			&s.MessageCount, &s.SentCountReal,
		); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, s)
	}
	return campaigns, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
