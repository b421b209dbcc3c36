// internal/model/whatsapp_session.go
package model

import "time"

// WhatsAppSession maps a user to the whatsmeow device holding their credentials.
type WhatsAppSession struct {
	UserID        int64      `db:"user_id" json:"user_id"`
	DeviceJID     *string    `db:"device_jid" json:"device_jid,omitempty"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	LastConnected *time.Time `db:"last_connected" json:"last_connected,omitempty"`
}
