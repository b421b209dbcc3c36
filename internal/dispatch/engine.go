// Package dispatch runs bulk sends: one message to an ordered list of
// recipients over a single connection, paced and with per-recipient
// outcomes.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/HugoP8/whazaaa/internal/errors"
	"github.com/HugoP8/whazaaa/internal/logger"
	"github.com/HugoP8/whazaaa/internal/media"
	"github.com/HugoP8/whazaaa/internal/metrics"
	"github.com/HugoP8/whazaaa/internal/model"
	"github.com/HugoP8/whazaaa/internal/notify"
	"github.com/HugoP8/whazaaa/internal/whatsapp"
)

// Job is one dispatch run. Recipients are attempted in order, Delay apart.
type Job struct {
	UserID     int64
	Recipients []string
	Message    string
	MediaPath  string
	Delay      time.Duration
}

type Engine struct {
	Media media.Reader
	Sink  notify.Sink
}

func NewEngine(m media.Reader, sink notify.Sink) *Engine {
	if sink == nil {
		sink = notify.Nop{}
	}
	return &Engine{Media: m, Sink: sink}
}

// Run sends job to every recipient over conn, strictly one after another.
// A failed send is recorded and the loop moves on. It returns one outcome
// per recipient in recipient order; on error (closed connection, unreadable
// media, cancelled context) it returns the outcomes produced so far.
func (e *Engine) Run(ctx context.Context, conn whatsapp.Connection, job Job) (outcomes []model.DeliveryOutcome, err error) {
	if conn == nil || !conn.IsOpen() {
		return nil, appErrors.ErrNotConnected
	}

	content, err := e.content(job)
	if err != nil {
		return nil, err
	}

	total := len(job.Recipients)
	outcomes = make([]model.DeliveryOutcome, 0, total)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("❌ dispatch run aborted", zap.Int64("user_id", job.UserID), zap.Any("panic", r))
			err = fmt.Errorf("dispatch aborted after %d of %d recipients: %v", len(outcomes), total, r)
		}
	}()

	logger.Info("🚀 dispatch started",
		zap.Int64("user_id", job.UserID),
		zap.Int("recipients", total),
		zap.String("kind", string(content.Kind)),
		zap.Duration("delay", job.Delay),
	)

	for i, recipient := range job.Recipients {
		outcome := e.send(ctx, conn, content, recipient, i)
		outcomes = append(outcomes, outcome)
		metrics.ObserveDelivery(string(outcome.Kind))

		e.Sink.Publish(notify.ProgressTopic(job.UserID), notify.Progress{
			Recipient: recipient,
			Status:    string(outcome.Kind),
			Current:   i + 1,
			Total:     total,
			Error:     outcome.Error,
		})

		if i < total-1 {
			if err := wait(ctx, job.Delay); err != nil {
				logger.Warn("⚠️ dispatch cancelled",
					zap.Int64("user_id", job.UserID),
					zap.Int("attempted", len(outcomes)),
					zap.Int("total", total),
				)
				return outcomes, err
			}
		}
	}

	logger.Info("🏁 dispatch finished", zap.Int64("user_id", job.UserID), zap.Int("recipients", total))
	return outcomes, nil
}

func (e *Engine) send(ctx context.Context, conn whatsapp.Connection, content whatsapp.Content, recipient string, index int) model.DeliveryOutcome {
	outcome := model.DeliveryOutcome{Recipient: recipient, SequenceIndex: index}

	id, err := conn.SendMessage(ctx, recipient, content)
	if err != nil {
		logger.Warn("⚠️ send failed", zap.String("recipient", recipient), zap.Error(err))
		outcome.Kind = model.OutcomeFailed
		outcome.Error = err.Error()
		return outcome
	}

	logger.Debug("📤 message sent", zap.String("recipient", recipient), zap.String("message_id", id))
	outcome.Kind = model.OutcomeSent
	outcome.ProviderMessageID = id
	return outcome
}

// content reads the media once; every recipient shares the same bytes.
func (e *Engine) content(job Job) (whatsapp.Content, error) {
	if job.MediaPath == "" {
		return BuildContent(job.Message, "", "", nil), nil
	}
	if e.Media == nil {
		return whatsapp.Content{}, fmt.Errorf("no media store configured for %s", job.MediaPath)
	}
	data, err := e.Media.Read(job.MediaPath)
	if err != nil {
		return whatsapp.Content{}, err
	}
	return BuildContent(job.Message, job.MediaPath, e.Media.Extension(job.MediaPath), data), nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
