package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/HugoP8/whazaaa/internal/errors"
	"github.com/HugoP8/whazaaa/internal/media"
	"github.com/HugoP8/whazaaa/internal/model"
	"github.com/HugoP8/whazaaa/internal/notify"
	"github.com/HugoP8/whazaaa/internal/notify/notifytest"
	"github.com/HugoP8/whazaaa/internal/whatsapp"
	"github.com/HugoP8/whazaaa/internal/whatsapp/whatsapptest"
)

// MockMedia serves fixed bytes and counts reads
type MockMedia struct {
	mu    sync.Mutex
	data  map[string][]byte
	reads int
}

func (m *MockMedia) Read(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	data, ok := m.data[path]
	if !ok {
		return nil, fmt.Errorf("media %s not found", path)
	}
	return data, nil
}

func (m *MockMedia) Extension(path string) string {
	return media.Extension(path)
}

func (m *MockMedia) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func TestKindForExtension(t *testing.T) {
	tests := map[string]whatsapp.ContentKind{
		"jpg":   whatsapp.KindImage,
		".JPEG": whatsapp.KindImage,
		"png":   whatsapp.KindImage,
		"mp4":   whatsapp.KindVideo,
		"AVI":   whatsapp.KindVideo,
		"pdf":   whatsapp.KindDocument,
		"docx":  whatsapp.KindDocument,
		"":      whatsapp.KindDocument,
	}
	for ext, want := range tests {
		assert.Equal(t, want, KindForExtension(ext), ext)
	}
}

func TestBuildContent(t *testing.T) {
	assert.Equal(t, whatsapp.Content{Kind: whatsapp.KindText, Text: "Hi"}, BuildContent("Hi", "", "", nil))

	img := BuildContent("Hi", "uploads/a.png", "png", []byte{1})
	assert.Equal(t, whatsapp.KindImage, img.Kind)
	assert.Equal(t, "Hi", img.Caption)
	assert.Empty(t, img.FileName)

	doc := BuildContent("Hi", "uploads/price-list.pdf", "pdf", []byte{1})
	assert.Equal(t, whatsapp.KindDocument, doc.Kind)
	assert.Equal(t, "price-list.pdf", doc.FileName)
	assert.Empty(t, doc.Caption)
}

func TestRunScenarioPartialFailure(t *testing.T) {
	conn := whatsapptest.NewConn()
	ids := map[string]string{"A": "1", "C": "2"}
	conn.SendFunc = func(target string, _ whatsapp.Content) (string, error) {
		if target == "B" {
			return "", errors.New("rate limited")
		}
		return ids[target], nil
	}
	sink := &notifytest.Recorder{}
	engine := NewEngine(&MockMedia{}, sink)

	outcomes, err := engine.Run(context.Background(), conn, Job{
		UserID:     9,
		Recipients: []string{"A", "B", "C"},
		Message:    "Hi",
	})
	require.NoError(t, err)

	assert.Equal(t, []model.DeliveryOutcome{
		{Recipient: "A", Kind: model.OutcomeSent, ProviderMessageID: "1", SequenceIndex: 0},
		{Recipient: "B", Kind: model.OutcomeFailed, Error: "rate limited", SequenceIndex: 1},
		{Recipient: "C", Kind: model.OutcomeSent, ProviderMessageID: "2", SequenceIndex: 2},
	}, outcomes)

	progress := sink.Topic(notify.ProgressTopic(9))
	require.Len(t, progress, 3)
	assert.Equal(t, notify.Progress{Recipient: "A", Status: "SENT", Current: 1, Total: 3}, progress[0])
	assert.Equal(t, notify.Progress{Recipient: "B", Status: "FAILED", Current: 2, Total: 3, Error: "rate limited"}, progress[1])
	assert.Equal(t, notify.Progress{Recipient: "C", Status: "SENT", Current: 3, Total: 3}, progress[2])

	for _, s := range conn.Sent() {
		assert.Equal(t, whatsapp.Content{Kind: whatsapp.KindText, Text: "Hi"}, s.Content)
	}
}

func TestRunPreservesOrderAndDuplicates(t *testing.T) {
	recipients := []string{"5", "3", "9", "3", "1", "7"}
	conn := whatsapptest.NewConn()
	conn.SendFunc = func(target string, _ whatsapp.Content) (string, error) {
		if target == "3" || target == "1" {
			return "", errors.New("boom")
		}
		return "id-" + target, nil
	}

	outcomes, err := NewEngine(nil, nil).Run(context.Background(), conn, Job{Recipients: recipients, Message: "x"})
	require.NoError(t, err)
	require.Len(t, outcomes, len(recipients))

	for i, o := range outcomes {
		assert.Equal(t, recipients[i], o.Recipient)
		assert.Equal(t, i, o.SequenceIndex)
	}
	sent := conn.Sent()
	require.Len(t, sent, len(recipients))
	for i, s := range sent {
		assert.Equal(t, recipients[i], s.Target)
	}
}

func TestRunPacesSends(t *testing.T) {
	const delay = 30 * time.Millisecond
	conn := whatsapptest.NewConn()

	start := time.Now()
	outcomes, err := NewEngine(nil, nil).Run(context.Background(), conn, Job{
		Recipients: []string{"a", "b", "c", "d"},
		Message:    "paced",
		Delay:      delay,
	})
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	assert.GreaterOrEqual(t, elapsed, 3*delay)
	sent := conn.Sent()
	for i := 1; i < len(sent); i++ {
		assert.GreaterOrEqual(t, sent[i].At.Sub(sent[i-1].At), delay)
	}
}

func TestRunNotConnected(t *testing.T) {
	engine := NewEngine(nil, nil)

	outcomes, err := engine.Run(context.Background(), nil, Job{Recipients: []string{"a"}})
	assert.ErrorIs(t, err, appErrors.ErrNotConnected)
	assert.Empty(t, outcomes)

	closed := whatsapptest.NewConn()
	closed.SetOpen(false)
	outcomes, err = engine.Run(context.Background(), closed, Job{Recipients: []string{"a"}})
	assert.ErrorIs(t, err, appErrors.ErrNotConnected)
	assert.Empty(t, outcomes)
	assert.Empty(t, closed.Sent())
}

func TestRunVideoReadOnce(t *testing.T) {
	video := []byte("fake mp4 bytes")
	store := &MockMedia{data: map[string][]byte{"promo.mp4": video}}
	conn := whatsapptest.NewConn()

	outcomes, err := NewEngine(store, nil).Run(context.Background(), conn, Job{
		Recipients: []string{"a", "b", "c"},
		Message:    "Promo!",
		MediaPath:  "promo.mp4",
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, 1, store.Reads())

	sent := conn.Sent()
	require.Len(t, sent, 3)
	for _, s := range sent {
		assert.Equal(t, whatsapp.KindVideo, s.Content.Kind)
		assert.Equal(t, "Promo!", s.Content.Caption)
		assert.Equal(t, video, s.Content.Data)
		assert.Same(t, &sent[0].Content.Data[0], &s.Content.Data[0])
	}
}

func TestRunMediaReadFailure(t *testing.T) {
	conn := whatsapptest.NewConn()
	outcomes, err := NewEngine(&MockMedia{}, nil).Run(context.Background(), conn, Job{
		Recipients: []string{"a"},
		MediaPath:  "missing.png",
	})
	assert.Error(t, err)
	assert.Empty(t, outcomes)
	assert.Empty(t, conn.Sent())
}

func TestRunCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	conn := whatsapptest.NewConn()
	conn.SendFunc = func(target string, _ whatsapp.Content) (string, error) {
		if target == "b" {
			cancel()
		}
		return "ok", nil
	}

	outcomes, err := NewEngine(nil, nil).Run(ctx, conn, Job{
		Recipients: []string{"a", "b", "c"},
		Delay:      time.Millisecond,
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, outcomes, 2)
}

func TestRunSurvivesStaleConnection(t *testing.T) {
	conn := whatsapptest.NewConn()
	conn.SendFunc = func(target string, _ whatsapp.Content) (string, error) {
		if target != "a" {
			return "", appErrors.ErrNotConnected
		}
		return "1", nil
	}

	outcomes, err := NewEngine(nil, nil).Run(context.Background(), conn, Job{Recipients: []string{"a", "b", "c"}})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, model.OutcomeSent, outcomes[0].Kind)
	assert.Equal(t, model.OutcomeFailed, outcomes[1].Kind)
	assert.Equal(t, model.OutcomeFailed, outcomes[2].Kind)
}

func TestRunRecoversFromPanic(t *testing.T) {
	conn := whatsapptest.NewConn()
	conn.SendFunc = func(target string, _ whatsapp.Content) (string, error) {
		if target == "b" {
			panic("transport exploded")
		}
		return "1", nil
	}

	outcomes, err := NewEngine(nil, nil).Run(context.Background(), conn, Job{Recipients: []string{"a", "b", "c"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport exploded")
	assert.Len(t, outcomes, 1)
}
