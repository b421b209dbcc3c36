package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/HugoP8/whazaaa/internal/model"
)

type SessionRepositoryInterface interface {
	Get(ctx context.Context, userID int64) (*model.WhatsAppSession, error)
	Save(ctx context.Context, userID int64, deviceJID string) error
	SetActive(ctx context.Context, userID int64, active bool) error
	Clear(ctx context.Context, userID int64) error
	ListActive(ctx context.Context) ([]model.WhatsAppSession, error)
}

type SessionRepository struct {
	DB *sql.DB
}

// Get returns the stored session, or nil when the user never paired.
func (r *SessionRepository) Get(ctx context.Context, userID int64) (*model.WhatsAppSession, error) {
	query := `
        SELECT user_id, device_jid, is_active, last_connected
        FROM whatsapp_sessions
        WHERE user_id=$1
    `
	var s model.WhatsAppSession
	err := r.DB.QueryRowContext(ctx, query, userID).Scan(&s.UserID, &s.DeviceJID, &s.IsActive, &s.LastConnected)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Save records the device holding the user's credentials and marks it active.
func (r *SessionRepository) Save(ctx context.Context, userID int64, deviceJID string) error {
	query := `
        INSERT INTO whatsapp_sessions (user_id, device_jid, is_active, last_connected)
        VALUES ($1, $2, true, NOW())
        ON CONFLICT (user_id)
        DO UPDATE SET device_jid = $2, is_active = true, last_connected = NOW()
    `
	_, err := r.DB.ExecContext(ctx, query, userID, deviceJID)
	return err
}

func (r *SessionRepository) SetActive(ctx context.Context, userID int64, active bool) error {
	query := `UPDATE whatsapp_sessions SET is_active=$1 WHERE user_id=$2`
	_, err := r.DB.ExecContext(ctx, query, active, userID)
	return err
}

// Clear forgets the device after a logout; the credentials are gone.
func (r *SessionRepository) Clear(ctx context.Context, userID int64) error {
	query := `UPDATE whatsapp_sessions SET device_jid=NULL, is_active=false WHERE user_id=$1`
	_, err := r.DB.ExecContext(ctx, query, userID)
	return err
}

// ListActive returns sessions that should be restored on startup.
func (r *SessionRepository) ListActive(ctx context.Context) ([]model.WhatsAppSession, error) {
	query := `
        SELECT user_id, device_jid, is_active, last_connected
        FROM whatsapp_sessions
        WHERE is_active AND device_jid IS NOT NULL
    `
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []model.WhatsAppSession{}
	for rows.Next() {
		var s model.WhatsAppSession
		if err := rows.Scan(&s.UserID, &s.DeviceJID, &s.IsActive, &s.LastConnected); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

var _ SessionRepositoryInterface = (*SessionRepository)(nil)
