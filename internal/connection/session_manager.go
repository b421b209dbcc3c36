package connection

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/HugoP8/whazaaa/internal/errors"
	"github.com/HugoP8/whazaaa/internal/logger"
	"github.com/HugoP8/whazaaa/internal/metrics"
	"github.com/HugoP8/whazaaa/internal/model"
	"github.com/HugoP8/whazaaa/internal/notify"
	"github.com/HugoP8/whazaaa/internal/repository"
	"github.com/HugoP8/whazaaa/internal/whatsapp"
)

// Phase is the per-user session state.
type Phase string

const (
	PhaseDisconnected      Phase = "DISCONNECTED"
	PhaseConnecting        Phase = "CONNECTING"
	PhaseQRPending         Phase = "QR_PENDING"
	PhaseOpen              Phase = "OPEN"
	PhaseClosedRecoverable Phase = "CLOSED_RECOVERABLE"
	PhaseClosedTerminal    Phase = "CLOSED_TERMINAL"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultMaxReconnects  = 10
	reconnectTimeout      = 30 * time.Second
	mediaMessageText      = "media message"
)

type Status struct {
	Connected bool   `json:"connected"`
	Identity  string `json:"user,omitempty"`
	Phase     Phase  `json:"state"`
}

type Options struct {
	ReconnectDelay time.Duration
	// MaxReconnectAttempts bounds consecutive failed reconnects. Zero means
	// the default, negative means retry forever.
	MaxReconnectAttempts int
}

// userSession serializes everything that touches one user's registry entry.
type userSession struct {
	mu sync.Mutex
	// phase is written under mu and read lock-free by Status and Phase.
	phase    atomic.Value
	attempts int
	timer    *time.Timer
	// pending is the handle the scheduled reconnect replaces.
	pending *Handle
}

func (us *userSession) setPhase(p Phase) {
	us.phase.Store(p)
}

func (us *userSession) getPhase() Phase {
	p, _ := us.phase.Load().(Phase)
	return p
}

// SessionManager drives the connect / pair / reconnect / logout state
// machine on top of a Registry.
type SessionManager struct {
	Provider             whatsapp.Provider
	Registry             *Registry
	SessionRepo          repository.SessionRepositoryInterface
	ContactRepo          repository.ContactRepositoryInterface
	Sink                 notify.Sink
	RenderQR             func(code string) (string, error)
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	mu    sync.Mutex
	users map[int64]*userSession
	wg    sync.WaitGroup
}

func NewSessionManager(
	provider whatsapp.Provider,
	registry *Registry,
	sessionRepo repository.SessionRepositoryInterface,
	contactRepo repository.ContactRepositoryInterface,
	sink notify.Sink,
	opts Options,
) *SessionManager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.MaxReconnectAttempts == 0 {
		opts.MaxReconnectAttempts = defaultMaxReconnects
	}
	if sink == nil {
		sink = notify.Nop{}
	}
	return &SessionManager{
		Provider:             provider,
		Registry:             registry,
		SessionRepo:          sessionRepo,
		ContactRepo:          contactRepo,
		Sink:                 sink,
		RenderQR:             RenderQR,
		ReconnectDelay:       opts.ReconnectDelay,
		MaxReconnectAttempts: opts.MaxReconnectAttempts,
		users:                make(map[int64]*userSession),
	}
}

func (m *SessionManager) user(userID int64) *userSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	us, ok := m.users[userID]
	if !ok {
		us = &userSession{}
		us.setPhase(PhaseDisconnected)
		m.users[userID] = us
	}
	return us
}

// Connect opens a provider session for the user, superseding any existing
// one. Stored credentials are reused; otherwise QR codes are published on
// the user's qr topic until the device is paired.
func (m *SessionManager) Connect(ctx context.Context, userID int64) error {
	us := m.user(userID)
	us.mu.Lock()
	stale, err := m.open(ctx, userID, us)
	us.mu.Unlock()

	if stale != nil && stale.Conn != nil {
		stale.Conn.Close()
	}
	return err
}

// open must be called with us.mu held. It returns the handle that the new
// one replaced so the caller can close it outside the lock.
func (m *SessionManager) open(ctx context.Context, userID int64, us *userSession) (*Handle, error) {
	m.stopTimer(us)

	deviceJID := ""
	session, err := m.SessionRepo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session != nil && session.DeviceJID != nil {
		deviceJID = *session.DeviceJID
	}

	prevPhase := us.getPhase()
	us.setPhase(PhaseConnecting)

	handle := NewHandle(userID, nil)
	conn, err := m.Provider.Open(ctx, userID, deviceJID, m.eventHandler(userID, handle))
	if err != nil {
		if _, registered := m.Registry.Get(userID); !registered {
			us.setPhase(PhaseDisconnected)
		} else {
			us.setPhase(prevPhase)
		}
		return nil, err
	}
	handle.Conn = conn

	prev := m.Registry.Register(userID, handle)
	metrics.SetActiveConnections(m.Registry.Len())
	logger.Info("🔌 WhatsApp connection opened",
		zap.Int64("user_id", userID),
		zap.Bool("paired", deviceJID != ""),
		zap.Uint64("generation", handle.Generation()),
	)
	return prev, nil
}

func (m *SessionManager) eventHandler(userID int64, handle *Handle) whatsapp.EventHandler {
	return func(evt whatsapp.Event) {
		switch e := evt.(type) {
		case whatsapp.ConnectionUpdate:
			m.onConnectionUpdate(userID, handle, e)
		case whatsapp.CredentialsUpdate:
			m.onCredentialsUpdate(userID, e)
		case whatsapp.MessageReceived:
			m.onMessage(userID, handle, e)
		}
	}
}

func (m *SessionManager) current(userID int64, handle *Handle) bool {
	h, ok := m.Registry.Get(userID)
	return ok && h == handle
}

func (m *SessionManager) onConnectionUpdate(userID int64, handle *Handle, e whatsapp.ConnectionUpdate) {
	us := m.user(userID)
	us.mu.Lock()
	defer us.mu.Unlock()

	if !m.current(userID, handle) {
		return
	}

	if e.QR != "" {
		us.setPhase(PhaseQRPending)
		qr, err := m.RenderQR(e.QR)
		if err != nil {
			logger.Error("⚠️ failed to render QR", zap.Int64("user_id", userID), zap.Error(err))
			return
		}
		m.Sink.Publish(notify.QRTopic(userID), qr)
		return
	}

	switch e.State {
	case whatsapp.StateOpen:
		handle.setState(whatsapp.StateOpen)
		us.setPhase(PhaseOpen)
		us.attempts = 0
		if err := m.SessionRepo.SetActive(context.Background(), userID, true); err != nil {
			logger.Warn("⚠️ failed to mark session active", zap.Int64("user_id", userID), zap.Error(err))
		}
		logger.Info("✅ WhatsApp connected", zap.Int64("user_id", userID), zap.String("identity", handle.Conn.Identity()))
		m.Sink.Publish(notify.ConnectionStatusTopic(userID), notify.ConnectionStatus{Connected: true})

	case whatsapp.StateClosed:
		handle.setState(whatsapp.StateClosed)
		if e.Reason.Terminal() {
			m.terminate(userID, handle, us, e)
			return
		}
		if us.timer != nil {
			// Already waiting on a reconnect for this disconnect.
			return
		}
		us.setPhase(PhaseClosedRecoverable)
		logger.Warn("⚠️ WhatsApp connection closed, will reconnect",
			zap.Int64("user_id", userID),
			zap.String("reason", string(e.Reason)),
			zap.Error(e.Err),
		)
		m.Sink.Publish(notify.ConnectionStatusTopic(userID), notify.ConnectionStatus{Connected: false})
		m.scheduleReconnect(userID, handle, us)

	case whatsapp.StateConnecting:
		if us.getPhase() != PhaseQRPending {
			us.setPhase(PhaseConnecting)
		}
	}
}

// terminate must be called with us.mu held.
func (m *SessionManager) terminate(userID int64, handle *Handle, us *userSession, e whatsapp.ConnectionUpdate) {
	us.setPhase(PhaseClosedTerminal)
	m.stopTimer(us)
	us.attempts = 0

	m.Registry.RemoveIf(userID, handle)
	metrics.SetActiveConnections(m.Registry.Len())
	if err := m.SessionRepo.Clear(context.Background(), userID); err != nil {
		logger.Warn("⚠️ failed to clear session", zap.Int64("user_id", userID), zap.Error(err))
	}
	logger.Info("🚪 WhatsApp session ended", zap.Int64("user_id", userID), zap.String("reason", string(e.Reason)))

	us.setPhase(PhaseDisconnected)
	m.Sink.Publish(notify.ConnectionStatusTopic(userID), notify.ConnectionStatus{Connected: false})

	// Closing can emit provider events; never do it under the user lock.
	go handle.Conn.Close()
}

// scheduleReconnect must be called with us.mu held.
func (m *SessionManager) scheduleReconnect(userID int64, handle *Handle, us *userSession) {
	if m.MaxReconnectAttempts > 0 && us.attempts >= m.MaxReconnectAttempts {
		logger.Error("❌ giving up reconnecting",
			zap.Int64("user_id", userID),
			zap.Int("attempts", us.attempts),
		)
		m.Registry.RemoveIf(userID, handle)
		metrics.SetActiveConnections(m.Registry.Len())
		us.setPhase(PhaseDisconnected)
		us.attempts = 0
		m.Sink.Publish(notify.ConnectionStatusTopic(userID), notify.ConnectionStatus{Connected: false})
		go handle.Conn.Close()
		return
	}
	us.attempts++
	us.pending = handle
	m.wg.Add(1)
	us.timer = time.AfterFunc(m.ReconnectDelay, func() {
		defer m.wg.Done()
		m.reconnect(userID, handle)
	})
}

// stopTimer must be called with us.mu held.
func (m *SessionManager) stopTimer(us *userSession) {
	if us.timer != nil && us.timer.Stop() {
		m.wg.Done()
	}
	us.timer = nil
	us.pending = nil
}

func (m *SessionManager) reconnect(userID int64, handle *Handle) {
	us := m.user(userID)
	us.mu.Lock()

	if us.pending != handle || !m.current(userID, handle) || us.getPhase() != PhaseClosedRecoverable {
		// Superseded by Connect, Logout or Shutdown while waiting.
		us.mu.Unlock()
		return
	}
	us.timer = nil
	us.pending = nil

	metrics.ObserveReconnect()
	logger.Info("🔄 reconnecting WhatsApp", zap.Int64("user_id", userID), zap.Int("attempt", us.attempts))

	ctx, cancel := context.WithTimeout(context.Background(), reconnectTimeout)
	defer cancel()

	stale, err := m.open(ctx, userID, us)
	if err != nil {
		logger.Error("⚠️ reconnect failed", zap.Int64("user_id", userID), zap.Error(err))
		us.setPhase(PhaseClosedRecoverable)
		m.scheduleReconnect(userID, handle, us)
	}
	us.mu.Unlock()

	if stale != nil && stale.Conn != nil {
		stale.Conn.Close()
	}
}

func (m *SessionManager) onCredentialsUpdate(userID int64, e whatsapp.CredentialsUpdate) {
	if err := m.SessionRepo.Save(context.Background(), userID, e.DeviceJID); err != nil {
		logger.Error("⚠️ failed to save session", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	logger.Info("🔑 WhatsApp paired", zap.Int64("user_id", userID), zap.String("identity", e.Identity))
}

func (m *SessionManager) onMessage(userID int64, handle *Handle, e whatsapp.MessageReceived) {
	if e.FromMe || !m.current(userID, handle) {
		return
	}
	text := e.Text
	if text == "" {
		text = mediaMessageText
	}
	m.Sink.Publish(notify.NewMessageTopic(userID), notify.NewMessage{
		From:      e.From,
		Message:   text,
		Timestamp: e.Timestamp.Unix(),
	})
}

// Status reports live transport readiness, not just registry presence.
// It does not wait for a Connect or reconnect in progress.
func (m *SessionManager) Status(userID int64) Status {
	phase := m.user(userID).getPhase()

	h, ok := m.Registry.Get(userID)
	if !ok || h.Conn == nil {
		return Status{Phase: phase}
	}
	return Status{
		Connected: h.Conn.IsOpen(),
		Identity:  h.Conn.Identity(),
		Phase:     phase,
	}
}

func (m *SessionManager) Phase(userID int64) Phase {
	return m.user(userID).getPhase()
}

// Logout logs the device out and forgets the connection. Without a
// connection it does nothing.
func (m *SessionManager) Logout(ctx context.Context, userID int64) error {
	us := m.user(userID)
	us.mu.Lock()
	defer us.mu.Unlock()

	m.stopTimer(us)
	us.attempts = 0

	h, ok := m.Registry.Get(userID)
	if !ok {
		return nil
	}

	logoutErr := h.Conn.Logout(ctx)
	m.Registry.Remove(userID)
	metrics.SetActiveConnections(m.Registry.Len())
	us.setPhase(PhaseDisconnected)

	if err := m.SessionRepo.Clear(ctx, userID); err != nil {
		logger.Warn("⚠️ failed to clear session", zap.Int64("user_id", userID), zap.Error(err))
	}
	m.Sink.Publish(notify.ConnectionStatusTopic(userID), notify.ConnectionStatus{Connected: false})

	if logoutErr != nil {
		go h.Conn.Close()
		return fmt.Errorf("failed to log out: %w", logoutErr)
	}
	logger.Info("👋 WhatsApp logged out", zap.Int64("user_id", userID))
	return nil
}

// Connection returns the user's current connection for callers that pin it
// for the duration of a run.
func (m *SessionManager) Connection(userID int64) (whatsapp.Connection, error) {
	h, ok := m.Registry.Get(userID)
	if !ok || h.Conn == nil {
		return nil, appErrors.ErrNotConnected
	}
	return h.Conn, nil
}

func (m *SessionManager) openConnection(userID int64) (whatsapp.Connection, error) {
	conn, err := m.Connection(userID)
	if err != nil {
		return nil, err
	}
	if !conn.IsOpen() {
		return nil, appErrors.ErrNotConnected
	}
	return conn, nil
}

func (m *SessionManager) Groups(ctx context.Context, userID int64) ([]whatsapp.Group, error) {
	conn, err := m.openConnection(userID)
	if err != nil {
		return nil, err
	}
	return conn.Groups(ctx)
}

// Contacts syncs the device's address book into the contacts table and
// returns the stored rows.
func (m *SessionManager) Contacts(ctx context.Context, userID int64) ([]model.Contact, error) {
	conn, err := m.openConnection(userID)
	if err != nil {
		return nil, err
	}
	infos, err := conn.Contacts(ctx)
	if err != nil {
		return nil, err
	}

	contacts := make([]model.Contact, 0, len(infos))
	for _, info := range infos {
		phone, server, found := strings.Cut(info.ID, "@")
		if !found || server != "s.whatsapp.net" || phone == "" {
			continue
		}
		contacts = append(contacts, model.Contact{UserID: userID, Name: info.Name, Phone: phone})
	}
	if len(contacts) == 0 {
		return []model.Contact{}, nil
	}
	return m.ContactRepo.Upsert(ctx, userID, contacts)
}

func (m *SessionManager) SendText(ctx context.Context, userID int64, target, text string) (string, error) {
	conn, err := m.openConnection(userID)
	if err != nil {
		return "", err
	}
	return conn.SendMessage(ctx, target, whatsapp.Content{Kind: whatsapp.KindText, Text: text})
}

// RestoreSessions reconnects every user whose session was active when the
// process last stopped. Failures are logged and skipped.
func (m *SessionManager) RestoreSessions(ctx context.Context) (int, error) {
	sessions, err := m.SessionRepo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active sessions: %w", err)
	}
	restored := 0
	for _, s := range sessions {
		if err := m.Connect(ctx, s.UserID); err != nil {
			logger.Warn("⚠️ failed to restore session", zap.Int64("user_id", s.UserID), zap.Error(err))
			continue
		}
		restored++
	}
	return restored, nil
}

// Shutdown cancels pending reconnects and closes every connection without
// logging the devices out.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	users := make([]*userSession, 0, len(m.users))
	for _, us := range m.users {
		users = append(users, us)
	}
	m.mu.Unlock()

	for _, us := range users {
		us.mu.Lock()
		m.stopTimer(us)
		us.setPhase(PhaseDisconnected)
		us.mu.Unlock()
	}

	for _, h := range m.Registry.Snapshot() {
		if m.Registry.RemoveIf(h.UserID, h) && h.Conn != nil {
			h.Conn.Close()
		}
	}
	metrics.SetActiveConnections(m.Registry.Len())
	m.wg.Wait()
}
