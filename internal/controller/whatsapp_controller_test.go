package controller_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HugoP8/whazaaa/internal/connection"
	"github.com/HugoP8/whazaaa/internal/controller"
	appErrors "github.com/HugoP8/whazaaa/internal/errors"
	"github.com/HugoP8/whazaaa/internal/model"
	"github.com/HugoP8/whazaaa/internal/whatsapp"
)

type MockSessions struct {
	connected  bool
	connectErr error
	logoutErr  error
	sent       []string
	calls      []string
}

func (m *MockSessions) conn() error {
	if !m.connected {
		return appErrors.ErrNotConnected
	}
	return nil
}

func (m *MockSessions) Connect(ctx context.Context, userID int64) error {
	m.calls = append(m.calls, "connect")
	return m.connectErr
}

func (m *MockSessions) Status(userID int64) connection.Status {
	if !m.connected {
		return connection.Status{Phase: connection.PhaseDisconnected}
	}
	return connection.Status{Connected: true, Identity: "549111:1@s.whatsapp.net", Phase: connection.PhaseOpen}
}

func (m *MockSessions) Logout(ctx context.Context, userID int64) error {
	m.calls = append(m.calls, "logout")
	return m.logoutErr
}

func (m *MockSessions) Groups(ctx context.Context, userID int64) ([]whatsapp.Group, error) {
	if err := m.conn(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (m *MockSessions) Contacts(ctx context.Context, userID int64) ([]model.Contact, error) {
	if err := m.conn(); err != nil {
		return nil, err
	}
	return []model.Contact{{UserID: userID, Name: "Ana", Phone: "549111"}}, nil
}

func (m *MockSessions) SendText(ctx context.Context, userID int64, target, text string) (string, error) {
	if err := m.conn(); err != nil {
		return "", err
	}
	m.sent = append(m.sent, target+":"+text)
	return "MSG1", nil
}

func whatsappRoutes(sessions *MockSessions) http.Handler {
	ctrl := &controller.WhatsAppController{Sessions: sessions}
	return asUser(3, func(r chi.Router) {
		r.Post("/connect", ctrl.Connect)
		r.Get("/status", ctrl.Status)
		r.Post("/logout", ctrl.Logout)
		r.Get("/groups", ctrl.Groups)
		r.Get("/contacts", ctrl.Contacts)
		r.Post("/send", ctrl.Send)
	})
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, bytes.NewBufferString(body)))
	return w
}

func TestWhatsAppConnectAndLogout(t *testing.T) {
	sessions := &MockSessions{}
	h := whatsappRoutes(sessions)

	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/connect", "").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/logout", "").Code)
	assert.Equal(t, []string{"connect", "logout"}, sessions.calls)

	sessions.connectErr = errors.New("store unavailable")
	assert.Equal(t, http.StatusInternalServerError, serve(h, http.MethodPost, "/connect", "").Code)
}

func TestWhatsAppStatus(t *testing.T) {
	sessions := &MockSessions{}
	h := whatsappRoutes(sessions)

	w := serve(h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"connected":false,"state":"DISCONNECTED"}`, w.Body.String())

	sessions.connected = true
	w = serve(h, http.MethodGet, "/status", "")
	assert.JSONEq(t, `{"connected":true,"user":"549111:1@s.whatsapp.net","state":"OPEN"}`, w.Body.String())
}

func TestWhatsAppRequiresConnection(t *testing.T) {
	h := whatsappRoutes(&MockSessions{})

	for _, path := range []string{"/groups", "/contacts"} {
		w := serve(h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Contains(t, w.Body.String(), "not connected", path)
	}
}

func TestWhatsAppGroupsAndContacts(t *testing.T) {
	h := whatsappRoutes(&MockSessions{connected: true})

	w := serve(h, http.MethodGet, "/groups", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = serve(h, http.MethodGet, "/contacts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"phone":"549111"`)
}

func TestWhatsAppSend(t *testing.T) {
	sessions := &MockSessions{connected: true}
	h := whatsappRoutes(sessions)

	w := serve(h, http.MethodPost, "/send", `{"to":"549111","message":"hola"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"MSG1"}`, w.Body.String())
	assert.Equal(t, []string{"549111:hola"}, sessions.sent)

	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodPost, "/send", `{"to":"","message":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodPost, "/send", `nope`).Code)
}
