package whatsapp

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	appErrors "github.com/HugoP8/whazaaa/internal/errors"
	"github.com/HugoP8/whazaaa/internal/logger"
)

// MeowProvider opens sessions with whatsmeow, keeping credentials in a
// sqlstore container (sqlite3 or postgres).
type MeowProvider struct {
	container *sqlstore.Container
}

func NewMeowProvider(ctx context.Context, dialect, dsn string) (*MeowProvider, error) {
	container, err := sqlstore.New(ctx, dialect, dsn, logger.WhatsApp("Database"))
	if err != nil {
		return nil, fmt.Errorf("failed to open whatsapp device store: %w", err)
	}
	return &MeowProvider{container: container}, nil
}

func (p *MeowProvider) Close() error {
	return p.container.Close()
}

func (p *MeowProvider) Open(ctx context.Context, userID int64, deviceJID string, handler EventHandler) (Connection, error) {
	device, err := p.device(ctx, deviceJID)
	if err != nil {
		return nil, err
	}

	client := whatsmeow.NewClient(device, logger.WhatsApp(fmt.Sprintf("Client-%d", userID)))
	// Reconnects are owned by the session manager.
	client.EnableAutoReconnect = false

	conn := &meowConnection{
		client:  client,
		uploads: make(map[uploadKey]whatsmeow.UploadResponse),
	}
	client.AddEventHandler(conn.eventHandler(handler))

	if client.Store.ID == nil {
		// The QR channel outlives the request that triggered the connect.
		qrChan, err := client.GetQRChannel(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to get QR channel: %w", err)
		}
		go forwardQR(qrChan, handler)
	}

	if err := client.Connect(); err != nil {
		client.RemoveEventHandlers()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return conn, nil
}

func (p *MeowProvider) device(ctx context.Context, deviceJID string) (*store.Device, error) {
	if deviceJID != "" {
		jid, err := types.ParseJID(deviceJID)
		if err != nil {
			return nil, fmt.Errorf("invalid stored device JID %q: %w", deviceJID, err)
		}
		device, err := p.container.GetDevice(ctx, jid)
		if err != nil {
			return nil, fmt.Errorf("failed to load device: %w", err)
		}
		if device != nil {
			return device, nil
		}
		logger.Warn("stored device missing, starting a new pairing", zap.String("device_jid", deviceJID))
	}
	return p.container.NewDevice(), nil
}

func forwardQR(qrChan <-chan whatsmeow.QRChannelItem, handler EventHandler) {
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			handler(ConnectionUpdate{State: StateConnecting, QR: item.Code})
		case "timeout":
			handler(ConnectionUpdate{State: StateClosed, Reason: ReasonPairingExpired})
			return
		case "success":
			return
		default:
			if item.Error != nil {
				handler(ConnectionUpdate{State: StateClosed, Reason: ReasonTransient, Err: item.Error})
			}
			return
		}
	}
}

type uploadKey struct {
	sum  [sha256.Size]byte
	kind ContentKind
}

type meowConnection struct {
	client *whatsmeow.Client

	mu      sync.Mutex
	uploads map[uploadKey]whatsmeow.UploadResponse
}

func (c *meowConnection) eventHandler(handler EventHandler) func(interface{}) {
	return func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Connected:
			handler(ConnectionUpdate{State: StateOpen})
		case *events.PairSuccess:
			handler(CredentialsUpdate{DeviceJID: v.ID.String(), Identity: v.ID.User})
		case *events.LoggedOut:
			handler(ConnectionUpdate{State: StateClosed, Reason: ReasonLoggedOut})
		case *events.ConnectFailure:
			reason := ReasonTransient
			if v.Reason.IsLoggedOut() {
				reason = ReasonLoggedOut
			}
			handler(ConnectionUpdate{State: StateClosed, Reason: reason, Err: fmt.Errorf("connect failure: %s", v.Reason)})
		case *events.Disconnected:
			handler(ConnectionUpdate{State: StateClosed, Reason: ReasonTransient})
		case *events.StreamReplaced:
			handler(ConnectionUpdate{State: StateClosed, Reason: ReasonTransient, Err: errors.New("stream replaced")})
		case *events.TemporaryBan:
			handler(ConnectionUpdate{State: StateClosed, Reason: ReasonTransient, Err: errors.New(v.String())})
		case *events.Message:
			handler(MessageReceived{
				From:      v.Info.Chat.String(),
				Text:      messageText(v.Message),
				Timestamp: v.Info.Timestamp,
				FromMe:    v.Info.IsFromMe,
			})
		}
	}
}

func messageText(msg *waE2E.Message) string {
	if msg.GetConversation() != "" {
		return msg.GetConversation()
	}
	if msg.GetExtendedTextMessage() != nil {
		return msg.GetExtendedTextMessage().GetText()
	}
	return ""
}

func (c *meowConnection) SendMessage(ctx context.Context, target string, content Content) (string, error) {
	if !c.client.IsConnected() {
		return "", appErrors.ErrNotConnected
	}
	jid, err := ParseTarget(target)
	if err != nil {
		return "", err
	}
	msg, err := c.build(ctx, content)
	if err != nil {
		return "", err
	}
	resp, err := c.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *meowConnection) build(ctx context.Context, content Content) (*waE2E.Message, error) {
	if content.Kind == KindText {
		return &waE2E.Message{Conversation: proto.String(content.Text)}, nil
	}

	up, err := c.upload(ctx, content)
	if err != nil {
		return nil, err
	}
	mime := mimetype.Detect(content.Data).String()

	switch content.Kind {
	case KindImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mime),
			Caption:       proto.String(content.Caption),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}, nil
	case KindVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mime),
			Caption:       proto.String(content.Caption),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}, nil
	default:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mime),
			FileName:      proto.String(content.FileName),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}, nil
	}
}

// upload sends the media to WhatsApp once per connection; a campaign
// reuses the same bytes for every recipient.
func (c *meowConnection) upload(ctx context.Context, content Content) (whatsmeow.UploadResponse, error) {
	key := uploadKey{sum: sha256.Sum256(content.Data), kind: content.Kind}

	c.mu.Lock()
	up, ok := c.uploads[key]
	c.mu.Unlock()
	if ok {
		return up, nil
	}

	mediaType := whatsmeow.MediaDocument
	switch content.Kind {
	case KindImage:
		mediaType = whatsmeow.MediaImage
	case KindVideo:
		mediaType = whatsmeow.MediaVideo
	}

	up, err := c.client.Upload(ctx, content.Data, mediaType)
	if err != nil {
		return whatsmeow.UploadResponse{}, fmt.Errorf("failed to upload media: %w", err)
	}

	c.mu.Lock()
	c.uploads[key] = up
	c.mu.Unlock()
	return up, nil
}

func (c *meowConnection) Groups(ctx context.Context) ([]Group, error) {
	if !c.client.IsConnected() {
		return nil, appErrors.ErrNotConnected
	}
	joined, err := c.client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, err
	}
	groups := make([]Group, 0, len(joined))
	for _, g := range joined {
		participants := make([]string, 0, len(g.Participants))
		for _, p := range g.Participants {
			participants = append(participants, p.JID.String())
		}
		groups = append(groups, Group{
			ID:           g.JID.String(),
			Subject:      g.Name,
			Desc:         g.Topic,
			Participants: participants,
			Creation:     g.GroupCreated,
			Owner:        g.OwnerJID.String(),
		})
	}
	return groups, nil
}

func (c *meowConnection) Contacts(ctx context.Context) ([]ContactInfo, error) {
	all, err := c.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, err
	}
	contacts := make([]ContactInfo, 0, len(all))
	for jid, info := range all {
		name := info.FullName
		if name == "" {
			name = info.PushName
		}
		if name == "" {
			name = info.BusinessName
		}
		if name == "" {
			name = jid.User
		}
		contacts = append(contacts, ContactInfo{ID: jid.String(), Name: name})
	}
	return contacts, nil
}

func (c *meowConnection) Logout(ctx context.Context) error {
	c.client.RemoveEventHandlers()
	return c.client.Logout(ctx)
}

func (c *meowConnection) Close() {
	c.client.RemoveEventHandlers()
	c.client.Disconnect()
}

func (c *meowConnection) IsOpen() bool {
	return c.client.IsConnected() && c.client.IsLoggedIn()
}

func (c *meowConnection) Identity() string {
	if c.client.Store == nil || c.client.Store.ID == nil {
		return ""
	}
	return c.client.Store.ID.String()
}
