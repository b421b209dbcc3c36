// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/HugoP8/whazaaa/internal/errors"
	"github.com/HugoP8/whazaaa/internal/logger"
	"github.com/HugoP8/whazaaa/internal/model"
	"github.com/HugoP8/whazaaa/internal/service"
)

const defaultUploadBytes = 10 << 20

// CampaignService is the part of service.CampaignService the HTTP layer uses.
type CampaignService interface {
	Validate(req service.CreateCampaignRequest) error
	CreateCampaign(ctx context.Context, userID int64, req service.CreateCampaignRequest) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, userID int64) ([]*model.CampaignSummary, error)
	GetCampaignDetails(ctx context.Context, userID, campaignID int64) (*service.CampaignDetails, error)
}

// MediaSaver persists an uploaded attachment and returns its stored path.
type MediaSaver interface {
	Save(name string, r io.Reader) (string, error)
	Remove(path string) error
}

type CampaignController struct {
	CampaignService CampaignService
	Media           MediaSaver
	MaxUploadBytes  int64
}

func (c *CampaignController) uploadLimit() int64 {
	if c.MaxUploadBytes > 0 {
		return c.MaxUploadBytes
	}
	return defaultUploadBytes
}

// CreateCampaign accepts either multipart/form-data (fields name, message,
// recipients as a JSON array, delay in ms, optional file "media") or a
// plain JSON body.
func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(r)

	var (
		req CreateCampaignBody
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		req, err = c.parseMultipart(w, r)
	} else {
		err = json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			err = appErrors.NewValidationError("", "invalid body")
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), userID, req.toRequest())
	if err != nil {
		c.discard(req.MediaPath)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"campaignId": campaign.ID,
		"campaign":   campaign,
		"message":    "campaign started",
	})
}

// CreateCampaignBody is the wire form of a new campaign.
type CreateCampaignBody struct {
	Name       string   `json:"name"`
	Message    string   `json:"message"`
	Recipients []string `json:"recipients"`
	Delay      *int64   `json:"delay"`
	MediaPath  string   `json:"-"`
}

func (b CreateCampaignBody) toRequest() service.CreateCampaignRequest {
	return service.CreateCampaignRequest{
		Name:       strings.TrimSpace(b.Name),
		Message:    b.Message,
		Recipients: b.Recipients,
		DelayMs:    b.Delay,
		MediaPath:  b.MediaPath,
	}
}

func (c *CampaignController) parseMultipart(w http.ResponseWriter, r *http.Request) (CreateCampaignBody, error) {
	var body CreateCampaignBody

	// Form fields ride along with the file, so allow a little headroom.
	r.Body = http.MaxBytesReader(w, r.Body, c.uploadLimit()+1<<20)
	if err := r.ParseMultipartForm(c.uploadLimit()); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return body, appErrors.NewValidationError("media", "file too large")
		}
		return body, appErrors.NewValidationError("", "invalid multipart body")
	}
	defer r.MultipartForm.RemoveAll()

	body.Name = r.FormValue("name")
	body.Message = r.FormValue("message")

	recipients, err := service.ParseRecipients(r.FormValue("recipients"))
	if err != nil {
		return body, err
	}
	body.Recipients = recipients

	if raw := strings.TrimSpace(r.FormValue("delay")); raw != "" {
		delay, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return body, appErrors.NewValidationError("delay", "must be an integer number of milliseconds")
		}
		body.Delay = &delay
	}

	file, header, err := r.FormFile("media")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return body, nil
	case err != nil:
		return body, appErrors.NewValidationError("media", "unreadable upload")
	}
	defer file.Close()

	// Nothing touches the disk until the rest of the form is valid.
	if err := c.CampaignService.Validate(body.toRequest()); err != nil {
		return body, err
	}

	if c.Media == nil {
		return body, appErrors.NewValidationError("media", "uploads are disabled")
	}
	path, err := c.Media.Save(header.Filename, file)
	if err != nil {
		return body, err
	}
	logger.Debug("media stored", zap.String("path", path), zap.Int64("size", header.Size))
	body.MediaPath = path
	return body, nil
}

// discard removes an upload whose campaign was never created.
func (c *CampaignController) discard(path string) {
	if path == "" || c.Media == nil {
		return
	}
	if err := c.Media.Remove(path); err != nil {
		logger.Warn("⚠️ failed to remove orphaned upload", zap.String("path", path), zap.Error(err))
	}
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := c.CampaignService.ListCampaigns(r.Context(), mustUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if campaigns == nil {
		campaigns = []*model.CampaignSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": campaigns})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	campaignID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || campaignID <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid campaign id")
		return
	}

	details, err := c.CampaignService.GetCampaignDetails(r.Context(), mustUserID(r), campaignID)
	if err != nil {
		writeError(w, err)
		return
	}
	if details.Messages == nil {
		details.Messages = []*model.Message{}
	}
	writeJSON(w, http.StatusOK, details)
}
