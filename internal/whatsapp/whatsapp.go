// Package whatsapp is the boundary to the messaging provider. Everything
// above it sees a Connection and a stream of Events; the wire protocol,
// pairing handshake and device store stay inside the provider.
package whatsapp

import (
	"context"
	"time"
)

type ContentKind string

const (
	KindText     ContentKind = "text"
	KindImage    ContentKind = "image"
	KindVideo    ContentKind = "video"
	KindDocument ContentKind = "document"
)

// Content is one outbound message. Data is shared between recipients of a
// run and must not be modified by a Connection.
type Content struct {
	Kind     ContentKind
	Text     string
	Caption  string
	Data     []byte
	FileName string
}

type Group struct {
	ID           string    `json:"id"`
	Subject      string    `json:"subject"`
	Desc         string    `json:"desc,omitempty"`
	Participants []string  `json:"participants"`
	Creation     time.Time `json:"creation"`
	Owner        string    `json:"owner,omitempty"`
}

type ContactInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Connection is a live provider session for one user.
type Connection interface {
	SendMessage(ctx context.Context, target string, content Content) (string, error)
	Groups(ctx context.Context) ([]Group, error)
	Contacts(ctx context.Context) ([]ContactInfo, error)
	Logout(ctx context.Context) error
	// Close drops the transport without invalidating credentials.
	Close()
	IsOpen() bool
	Identity() string
}

// Provider opens sessions. deviceJID selects persisted credentials; empty
// means a fresh device that has to be paired by QR.
type Provider interface {
	Open(ctx context.Context, userID int64, deviceJID string, handler EventHandler) (Connection, error)
}

type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "close"
)

type CloseReason string

const (
	ReasonNone      CloseReason = ""
	ReasonTransient CloseReason = "transient"
	ReasonLoggedOut CloseReason = "logged_out"
	// ReasonPairingExpired means every QR code timed out unscanned.
	ReasonPairingExpired CloseReason = "pairing_expired"
)

// Terminal reports whether reconnecting is pointless.
func (r CloseReason) Terminal() bool {
	return r == ReasonLoggedOut || r == ReasonPairingExpired
}

type Event interface {
	isEvent()
}

// ConnectionUpdate carries a state change or a fresh pairing code.
type ConnectionUpdate struct {
	State  State
	QR     string
	Reason CloseReason
	Err    error
}

// CredentialsUpdate is emitted after pairing stored new credentials.
type CredentialsUpdate struct {
	DeviceJID string
	Identity  string
}

type MessageReceived struct {
	From      string
	Text      string
	Timestamp time.Time
	FromMe    bool
}

func (ConnectionUpdate) isEvent()  {}
func (CredentialsUpdate) isEvent() {}
func (MessageReceived) isEvent()   {}

type EventHandler func(Event)
