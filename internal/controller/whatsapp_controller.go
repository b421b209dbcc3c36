package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/HugoP8/whazaaa/internal/connection"
	appErrors "github.com/HugoP8/whazaaa/internal/errors"
	"github.com/HugoP8/whazaaa/internal/model"
	"github.com/HugoP8/whazaaa/internal/whatsapp"
)

// SessionService is the part of connection.SessionManager the HTTP layer uses.
type SessionService interface {
	Connect(ctx context.Context, userID int64) error
	Status(userID int64) connection.Status
	Logout(ctx context.Context, userID int64) error
	Groups(ctx context.Context, userID int64) ([]whatsapp.Group, error)
	Contacts(ctx context.Context, userID int64) ([]model.Contact, error)
	SendText(ctx context.Context, userID int64, target, text string) (string, error)
}

type WhatsAppController struct {
	Sessions SessionService
}

// Connect starts pairing or resumes stored credentials. Progress arrives
// over the events socket (qr, connection-status).
func (c *WhatsAppController) Connect(w http.ResponseWriter, r *http.Request) {
	if err := c.Sessions.Connect(r.Context(), mustUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "connecting to WhatsApp"})
}

func (c *WhatsAppController) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.Sessions.Status(mustUserID(r)))
}

func (c *WhatsAppController) Logout(w http.ResponseWriter, r *http.Request) {
	if err := c.Sessions.Logout(r.Context(), mustUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (c *WhatsAppController) Groups(w http.ResponseWriter, r *http.Request) {
	groups, err := c.Sessions.Groups(r.Context(), mustUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if groups == nil {
		groups = []whatsapp.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (c *WhatsAppController) Contacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := c.Sessions.Contacts(r.Context(), mustUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

// Send delivers a single text message outside any campaign.
func (c *WhatsAppController) Send(w http.ResponseWriter, r *http.Request) {
	var body struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}
	body.To = strings.TrimSpace(body.To)
	if body.To == "" || body.Message == "" {
		writeError(w, appErrors.NewValidationError("", "to and message are required"))
		return
	}

	id, err := c.Sessions.SendText(r.Context(), mustUserID(r), body.To, body.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
