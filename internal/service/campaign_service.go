// internal/service/campaign_service.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/HugoP8/whazaaa/internal/dispatch"
	appErrors "github.com/HugoP8/whazaaa/internal/errors"
	"github.com/HugoP8/whazaaa/internal/logger"
	"github.com/HugoP8/whazaaa/internal/metrics"
	"github.com/HugoP8/whazaaa/internal/model"
	"github.com/HugoP8/whazaaa/internal/notify"
	"github.com/HugoP8/whazaaa/internal/repository"
	"github.com/HugoP8/whazaaa/internal/whatsapp"
)

const detailsMessageLimit = 100

// ConnectionSource hands out the user's current connection.
type ConnectionSource interface {
	Connection(userID int64) (whatsapp.Connection, error)
}

// Dispatcher runs one bulk send.
type Dispatcher interface {
	Run(ctx context.Context, conn whatsapp.Connection, job dispatch.Job) ([]model.DeliveryOutcome, error)
}

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	MessageRepo  repository.MessageRepositoryInterface
	Connections  ConnectionSource
	Dispatcher   Dispatcher
	Sink         notify.Sink
	DefaultDelay time.Duration

	validate *validator.Validate
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

type CreateCampaignRequest struct {
	Name       string   `json:"name" validate:"required,max=255"`
	Message    string   `json:"message" validate:"required"`
	Recipients []string `json:"recipients" validate:"required,min=1,dive,required"`
	// DelayMs is the pause between two sends; nil means the default.
	DelayMs   *int64 `json:"delay" validate:"omitempty,min=0,max=3600000"`
	MediaPath string `json:"-"`
}

type CampaignDetails struct {
	*model.Campaign
	Messages []*model.Message `json:"messages"`
}

func NewCampaignService(
	campaignRepo repository.CampaignRepositoryInterface,
	messageRepo repository.MessageRepositoryInterface,
	connections ConnectionSource,
	dispatcher Dispatcher,
	sink notify.Sink,
	defaultDelay time.Duration,
) *CampaignService {
	if sink == nil {
		sink = notify.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CampaignService{
		CampaignRepo: campaignRepo,
		MessageRepo:  messageRepo,
		Connections:  connections,
		Dispatcher:   dispatcher,
		Sink:         sink,
		DefaultDelay: defaultDelay,
		validate:     validator.New(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// ParseRecipients decodes the JSON array of recipient targets sent by
// clients. Order and duplicates are kept.
func ParseRecipients(raw string) ([]string, error) {
	var recipients []string
	if err := json.Unmarshal([]byte(raw), &recipients); err != nil {
		return nil, appErrors.NewValidationError("recipients", "must be a JSON array of phone numbers")
	}
	for i, r := range recipients {
		recipients[i] = strings.TrimSpace(r)
	}
	return recipients, nil
}

func (s *CampaignService) Validate(req CreateCampaignRequest) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return appErrors.NewValidationError(strings.ToLower(fe.Field()), fmt.Sprintf("failed on '%s'", fe.Tag()))
		}
		return appErrors.NewValidationError("", err.Error())
	}
	return nil
}

func (s *CampaignService) delay(req CreateCampaignRequest) time.Duration {
	if req.DelayMs == nil {
		return s.DefaultDelay
	}
	return time.Duration(*req.DelayMs) * time.Millisecond
}

// CreateCampaign stores a PENDING campaign and starts sending it in the
// background. It returns as soon as the campaign row exists.
func (s *CampaignService) CreateCampaign(ctx context.Context, userID int64, req CreateCampaignRequest) (*model.Campaign, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		UserID:  userID,
		Name:    req.Name,
		Message: req.Message,
		Status:  model.CampaignPending,
	}
	if req.MediaPath != "" {
		path := req.MediaPath
		c.MediaPath = &path
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}

	logger.Info("📣 campaign created",
		zap.Int64("campaign_id", c.ID),
		zap.Int64("user_id", userID),
		zap.Int("recipients", len(req.Recipients)),
	)

	recipients := append([]string(nil), req.Recipients...)
	delay := s.delay(req)
	snapshot := *c

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.Execute(s.ctx, &snapshot, recipients, delay)
	}()

	return c, nil
}

// Execute runs a campaign to a terminal status: IN_PROGRESS, dispatch on
// the connection pinned at start, one message row per outcome, then
// COMPLETED (or FAILED with the error text).
func (s *CampaignService) Execute(ctx context.Context, c *model.Campaign, recipients []string, delay time.Duration) ([]model.DeliveryOutcome, error) {
	start := time.Now()
	// Bookkeeping must survive cancellation of the run itself.
	store := context.WithoutCancel(ctx)

	total := len(recipients)
	inProgress := model.CampaignInProgress
	if err := s.CampaignRepo.Update(store, c.ID, model.CampaignUpdate{Status: &inProgress, TotalRecipients: &total}); err != nil {
		return nil, s.fail(store, c, 0, start, err)
	}
	c.Status = inProgress
	c.TotalRecipients = total

	conn, err := s.Connections.Connection(c.UserID)
	if err != nil {
		return nil, s.fail(store, c, 0, start, err)
	}

	job := dispatch.Job{
		UserID:     c.UserID,
		Recipients: recipients,
		Message:    c.Message,
		Delay:      delay,
	}
	if c.MediaPath != nil {
		job.MediaPath = *c.MediaPath
	}

	outcomes, runErr := s.Dispatcher.Run(ctx, conn, job)

	sent := 0
	for _, o := range outcomes {
		if err := s.MessageRepo.Create(store, model.MessageFromOutcome(c.ID, o)); err != nil {
			return outcomes, s.fail(store, c, sent, start, fmt.Errorf("failed to store outcome for %s: %w", o.Recipient, err))
		}
		if o.Kind == model.OutcomeSent {
			sent++
		}
	}

	if runErr != nil {
		return outcomes, s.fail(store, c, sent, start, runErr)
	}

	completed := model.CampaignCompleted
	now := time.Now()
	if err := s.CampaignRepo.Update(store, c.ID, model.CampaignUpdate{
		Status:      &completed,
		SentCount:   &sent,
		CompletedAt: &now,
	}); err != nil {
		return outcomes, s.fail(store, c, sent, start, err)
	}
	c.Status = completed
	c.SentCount = sent
	c.CompletedAt = &now

	metrics.ObserveCampaign(string(completed), time.Since(start))
	logger.Info("✅ campaign completed",
		zap.Int64("campaign_id", c.ID),
		zap.Int("sent", sent),
		zap.Int("total", total),
		zap.Duration("elapsed", time.Since(start)),
	)
	s.Sink.Publish(notify.CampaignCompletedTopic(c.UserID), notify.CampaignCompleted{
		CampaignID:   c.ID,
		SuccessCount: sent,
		TotalCount:   total,
	})
	return outcomes, nil
}

// fail marks the campaign FAILED and returns cause.
func (s *CampaignService) fail(ctx context.Context, c *model.Campaign, sent int, start time.Time, cause error) error {
	failed := model.CampaignFailed
	msg := cause.Error()
	now := time.Now()

	if err := s.CampaignRepo.Update(ctx, c.ID, model.CampaignUpdate{
		Status:      &failed,
		SentCount:   &sent,
		Error:       &msg,
		CompletedAt: &now,
	}); err != nil {
		logger.Error("⚠️ failed to mark campaign failed", zap.Int64("campaign_id", c.ID), zap.Error(err))
	} else {
		c.Status = failed
		c.SentCount = sent
		c.Error = &msg
		c.CompletedAt = &now
	}

	metrics.ObserveCampaign(string(failed), time.Since(start))
	logger.Error("❌ campaign failed", zap.Int64("campaign_id", c.ID), zap.Int("sent", sent), zap.Error(cause))
	return cause
}

// ListCampaigns returns the user's campaigns, newest first.
func (s *CampaignService) ListCampaigns(ctx context.Context, userID int64) ([]*model.CampaignSummary, error) {
	return s.CampaignRepo.ListByUser(ctx, userID)
}

// GetCampaignDetails returns the campaign with its latest messages.
func (s *CampaignService) GetCampaignDetails(ctx context.Context, userID, campaignID int64) (*CampaignDetails, error) {
	// A miss, or another user's campaign, comes back as ErrCampaignNotFound.
	c, err := s.CampaignRepo.GetByID(ctx, campaignID, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.MessageRepo.ListByCampaign(ctx, campaignID, detailsMessageLimit)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: c, Messages: msgs}, nil
}

// Shutdown cancels running campaigns and waits until each one has recorded
// its final status.
func (s *CampaignService) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every background run has finished.
func (s *CampaignService) Wait() {
	s.wg.Wait()
}
