// Package notify carries real-time events (QR codes, connection status,
// dispatch progress) from the core to whoever is listening. Delivery is
// fire-and-forget: an observer that is not subscribed misses the event.
package notify

import (
	"encoding/json"
	"fmt"
	"time"
)

// Sink publishes one event under a topic. Implementations must not block
// the caller on slow consumers and never report errors back.
type Sink interface {
	Publish(topic string, payload any)
}

func QRTopic(userID int64) string {
	return fmt.Sprintf("qr-%d", userID)
}

func ConnectionStatusTopic(userID int64) string {
	return fmt.Sprintf("connection-status-%d", userID)
}

func NewMessageTopic(userID int64) string {
	return fmt.Sprintf("new-message-%d", userID)
}

func ProgressTopic(userID int64) string {
	return fmt.Sprintf("message-progress-%d", userID)
}

func CampaignCompletedTopic(userID int64) string {
	return fmt.Sprintf("campaign-completed-%d", userID)
}

// UserTopics lists every topic a user's dashboard listens to.
func UserTopics(userID int64) []string {
	return []string{
		QRTopic(userID),
		ConnectionStatusTopic(userID),
		NewMessageTopic(userID),
		ProgressTopic(userID),
		CampaignCompletedTopic(userID),
	}
}

type ConnectionStatus struct {
	Connected bool `json:"connected"`
}

type NewMessage struct {
	From      string `json:"from"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type Progress struct {
	Recipient string `json:"recipient"`
	Status    string `json:"status"`
	Current   int    `json:"current"`
	Total     int    `json:"total"`
	Error     string `json:"error,omitempty"`
}

type CampaignCompleted struct {
	CampaignID   int64 `json:"campaignId"`
	SuccessCount int   `json:"successCount"`
	TotalCount   int   `json:"totalCount"`
}

// Envelope is the wire form used by the broker-backed sinks and the
// websocket stream.
type Envelope struct {
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func Encode(topic string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}
	return json.Marshal(Envelope{Topic: topic, Payload: raw, Timestamp: time.Now().UTC()})
}

// Multi fans one event out to several sinks in order.
type Multi []Sink

func (m Multi) Publish(topic string, payload any) {
	for _, s := range m {
		if s != nil {
			s.Publish(topic, payload)
		}
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(string, any) {}
