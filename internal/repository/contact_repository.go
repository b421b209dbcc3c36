package repository

import (
	"context"
	"database/sql"

	"github.com/HugoP8/whazaaa/internal/model"
)

// ContactRepositoryInterface defines methods used by the session manager
type ContactRepositoryInterface interface {
	Upsert(ctx context.Context, userID int64, contacts []model.Contact) ([]model.Contact, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Contact, error)
}

// ContactRepository is the concrete implementation
type ContactRepository struct {
	DB *sql.DB
}

// Upsert stores contacts, refreshing the name of ones already known by phone.
func (r *ContactRepository) Upsert(ctx context.Context, userID int64, contacts []model.Contact) ([]model.Contact, error) {
	query := `
        INSERT INTO contacts (user_id, name, phone)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id, phone)
        DO UPDATE SET name = EXCLUDED.name
        RETURNING id, user_id, name, phone, created_at
    `
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	saved := make([]model.Contact, 0, len(contacts))
	for _, c := range contacts {
		var out model.Contact
		if err := stmt.QueryRowContext(ctx, userID, c.Name, c.Phone).
			Scan(&out.ID, &out.UserID, &out.Name, &out.Phone, &out.CreatedAt); err != nil {
			return nil, err
		}
		saved = append(saved, out)
	}
	return saved, tx.Commit()
}

// ListByUser fetches all contacts of a user ordered by name
func (r *ContactRepository) ListByUser(ctx context.Context, userID int64) ([]model.Contact, error) {
	query := `
        SELECT id, user_id, name, phone, created_at
        FROM contacts
        WHERE user_id = $1
        ORDER BY name
    `
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Phone, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
