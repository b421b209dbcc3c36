// Package whatsapptest provides in-memory Provider and Connection fakes.
package whatsapptest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/HugoP8/whazaaa/internal/whatsapp"
)

type Sent struct {
	Target  string
	Content whatsapp.Content
	At      time.Time
}

// Conn records sends. SendFunc, when set, decides each send's result.
type Conn struct {
	ID          string
	SendFunc    func(target string, content whatsapp.Content) (string, error)
	GroupList   []whatsapp.Group
	ContactList []whatsapp.ContactInfo
	LogoutErr   error

	mu        sync.Mutex
	open      bool
	sent      []Sent
	loggedOut int
	closed    int
}

func NewConn() *Conn {
	return &Conn{ID: "5491100000000:1@s.whatsapp.net", open: true}
}

func (c *Conn) SetOpen(open bool) {
	c.mu.Lock()
	c.open = open
	c.mu.Unlock()
}

func (c *Conn) SendMessage(ctx context.Context, target string, content whatsapp.Content) (string, error) {
	c.mu.Lock()
	c.sent = append(c.sent, Sent{Target: target, Content: content, At: time.Now()})
	fn := c.SendFunc
	c.mu.Unlock()

	if fn != nil {
		return fn(target, content)
	}
	return "msg-" + target, nil
}

func (c *Conn) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sent, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *Conn) Groups(ctx context.Context) ([]whatsapp.Group, error) {
	return c.GroupList, nil
}

func (c *Conn) Contacts(ctx context.Context) ([]whatsapp.ContactInfo, error) {
	return c.ContactList, nil
}

func (c *Conn) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedOut++
	if c.LogoutErr != nil {
		return c.LogoutErr
	}
	c.open = false
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	c.open = false
}

func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Conn) Identity() string {
	return c.ID
}

func (c *Conn) LoggedOut() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedOut
}

func (c *Conn) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type OpenCall struct {
	UserID    int64
	DeviceJID string
	Handler   whatsapp.EventHandler
	Conn      *Conn
}

// Provider hands out a new Conn per Open. Errs is consumed in order, one
// entry per Open; a nil entry (or an empty queue) means success.
type Provider struct {
	// Gate, when set, holds every Open until it is closed or ctx ends.
	Gate chan struct{}

	mu    sync.Mutex
	Errs  []error
	calls []OpenCall
}

var ErrOpen = errors.New("provider unavailable")

func (p *Provider) Open(ctx context.Context, userID int64, deviceJID string, handler whatsapp.EventHandler) (whatsapp.Connection, error) {
	if p.Gate != nil {
		select {
		case <-p.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	call := OpenCall{UserID: userID, DeviceJID: deviceJID, Handler: handler}
	if len(p.Errs) > 0 {
		err := p.Errs[0]
		p.Errs = p.Errs[1:]
		if err != nil {
			p.calls = append(p.calls, call)
			return nil, err
		}
	}
	call.Conn = NewConn()
	p.calls = append(p.calls, call)
	return call.Conn, nil
}

func (p *Provider) Opens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *Provider) Call(i int) OpenCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[i]
}

// Last returns the most recent successful Open.
func (p *Provider) Last() OpenCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.calls) - 1; i >= 0; i-- {
		if p.calls[i].Conn != nil {
			return p.calls[i]
		}
	}
	return OpenCall{}
}

var (
	_ whatsapp.Connection = (*Conn)(nil)
	_ whatsapp.Provider   = (*Provider)(nil)
)
