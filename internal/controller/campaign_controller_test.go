package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HugoP8/whazaaa/internal/controller"
	appErrors "github.com/HugoP8/whazaaa/internal/errors"
	"github.com/HugoP8/whazaaa/internal/media"
	"github.com/HugoP8/whazaaa/internal/model"
	"github.com/HugoP8/whazaaa/internal/service"
)

// --- Mocks ---

type MockCampaignService struct {
	createErr error
	gotUserID int64
	gotReq    *service.CreateCampaignRequest
	summaries []*model.CampaignSummary
	details   *service.CampaignDetails
	detailErr error
}

var realValidator = service.NewCampaignService(nil, nil, nil, nil, nil, 0)

func (m *MockCampaignService) Validate(req service.CreateCampaignRequest) error {
	return realValidator.Validate(req)
}

func (m *MockCampaignService) CreateCampaign(ctx context.Context, userID int64, req service.CreateCampaignRequest) (*model.Campaign, error) {
	m.gotUserID = userID
	m.gotReq = &req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &model.Campaign{ID: 42, UserID: userID, Name: req.Name, Message: req.Message, Status: model.CampaignPending}, nil
}

func (m *MockCampaignService) ListCampaigns(ctx context.Context, userID int64) ([]*model.CampaignSummary, error) {
	m.gotUserID = userID
	return m.summaries, nil
}

func (m *MockCampaignService) GetCampaignDetails(ctx context.Context, userID, campaignID int64) (*service.CampaignDetails, error) {
	m.gotUserID = userID
	if m.detailErr != nil {
		return nil, m.detailErr
	}
	return m.details, nil
}

type MockMediaSaver struct {
	name    string
	data    []byte
	removed []string
}

func (m *MockMediaSaver) Save(name string, r io.Reader) (string, error) {
	m.name = name
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.data = data
	return "uploads/stored.png", nil
}

func (m *MockMediaSaver) Remove(path string) error {
	m.removed = append(m.removed, path)
	return nil
}

// asUser mounts handlers behind a fake authentication step.
func asUser(userID int64, mount func(r chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(controller.WithUserID(req.Context(), userID)))
		})
	})
	mount(r)
	return r
}

func campaignRoutes(ctrl *controller.CampaignController) http.Handler {
	return asUser(7, func(r chi.Router) {
		r.Post("/campaigns", ctrl.CreateCampaign)
		r.Get("/campaigns", ctrl.ListCampaigns)
		r.Get("/campaigns/{id}", ctrl.GetCampaignDetails)
	})
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// --- Tests ---

func TestCreateCampaignJSON(t *testing.T) {
	svc := &MockCampaignService{}
	h := campaignRoutes(&controller.CampaignController{CampaignService: svc})

	b, _ := json.Marshal(map[string]interface{}{
		"name":       " Launch ",
		"message":    "Hi",
		"recipients": []string{"549111", "549222"},
		"delay":      250,
	})
	req := httptest.NewRequest(http.MethodPost, "/campaigns", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, float64(42), decode(t, w)["campaignId"])

	require.NotNil(t, svc.gotReq)
	assert.Equal(t, int64(7), svc.gotUserID)
	assert.Equal(t, "Launch", svc.gotReq.Name)
	assert.Equal(t, []string{"549111", "549222"}, svc.gotReq.Recipients)
	require.NotNil(t, svc.gotReq.DelayMs)
	assert.Equal(t, int64(250), *svc.gotReq.DelayMs)
	assert.Empty(t, svc.gotReq.MediaPath)
}

func TestCreateCampaignValidationError(t *testing.T) {
	svc := &MockCampaignService{createErr: appErrors.NewValidationError("recipients", "failed on 'min'")}
	h := campaignRoutes(&controller.CampaignController{CampaignService: svc})

	req := httptest.NewRequest(http.MethodPost, "/campaigns", bytes.NewBufferString(`{"name":"x","message":"y","recipients":[]}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "recipients")
}

func TestCreateCampaignInvalidBody(t *testing.T) {
	svc := &MockCampaignService{}
	h := campaignRoutes(&controller.CampaignController{CampaignService: svc})

	req := httptest.NewRequest(http.MethodPost, "/campaigns", bytes.NewBufferString(`{not json`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.gotReq)
}

func multipartRequest(t *testing.T, fields map[string]string, fileName string, file []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("media", fileName)
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/campaigns", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCreateCampaignMultipartWithMedia(t *testing.T) {
	svc := &MockCampaignService{}
	saver := &MockMediaSaver{}
	h := campaignRoutes(&controller.CampaignController{CampaignService: svc, Media: saver})

	req := multipartRequest(t, map[string]string{
		"name":       "Promo",
		"message":    "See attached",
		"recipients": `["549111", " 549222 ", "549111"]`,
		"delay":      "1000",
	}, "banner.png", []byte("png-bytes"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "banner.png", saver.name)
	assert.Equal(t, []byte("png-bytes"), saver.data)

	require.NotNil(t, svc.gotReq)
	assert.Equal(t, "uploads/stored.png", svc.gotReq.MediaPath)
	assert.Equal(t, []string{"549111", "549222", "549111"}, svc.gotReq.Recipients)
	assert.Equal(t, int64(1000), *svc.gotReq.DelayMs)
}

func TestCreateCampaignMultipartBadRecipients(t *testing.T) {
	svc := &MockCampaignService{}
	h := campaignRoutes(&controller.CampaignController{CampaignService: svc, Media: &MockMediaSaver{}})

	req := multipartRequest(t, map[string]string{
		"name":       "Promo",
		"message":    "Hi",
		"recipients": "549111,549222",
	}, "", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.gotReq)
}

func TestCreateCampaignMultipartTooLarge(t *testing.T) {
	svc := &MockCampaignService{}
	h := campaignRoutes(&controller.CampaignController{CampaignService: svc, Media: &MockMediaSaver{}, MaxUploadBytes: 16})

	req := multipartRequest(t, map[string]string{
		"name":       "Promo",
		"message":    "Hi",
		"recipients": `["1"]`,
	}, "big.pdf", bytes.Repeat([]byte("x"), 2<<20))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.gotReq)
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestCreateCampaignMultipartInvalidFieldsStoresNothing(t *testing.T) {
	dir := t.TempDir()
	store, err := media.NewStore(dir, 1<<20)
	require.NoError(t, err)

	svc := &MockCampaignService{}
	h := campaignRoutes(&controller.CampaignController{CampaignService: svc, Media: store})

	req := multipartRequest(t, map[string]string{
		"name":       "",
		"message":    "Hi",
		"recipients": `["549111"]`,
	}, "banner.png", pngBytes)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "name")
	assert.Nil(t, svc.gotReq)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateCampaignMultipartRemovesUploadOnFailure(t *testing.T) {
	dir := t.TempDir()
	store, err := media.NewStore(dir, 1<<20)
	require.NoError(t, err)

	svc := &MockCampaignService{createErr: errors.New("db down")}
	h := campaignRoutes(&controller.CampaignController{CampaignService: svc, Media: store})

	req := multipartRequest(t, map[string]string{
		"name":       "Promo",
		"message":    "Hi",
		"recipients": `["549111"]`,
	}, "banner.png", pngBytes)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotNil(t, svc.gotReq)
	assert.NotEmpty(t, svc.gotReq.MediaPath)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateCampaignJSONFailureRemovesNothing(t *testing.T) {
	svc := &MockCampaignService{createErr: errors.New("db down")}
	saver := &MockMediaSaver{}
	h := campaignRoutes(&controller.CampaignController{CampaignService: svc, Media: saver})

	req := httptest.NewRequest(http.MethodPost, "/campaigns", bytes.NewBufferString(`{"name":"x","message":"y","recipients":["1"]}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, saver.removed)
}

func TestListCampaigns(t *testing.T) {
	svc := &MockCampaignService{summaries: []*model.CampaignSummary{
		{Campaign: model.Campaign{ID: 2, Name: "b", Status: model.CampaignCompleted}, MessageCount: 3, SentCountReal: 2},
		{Campaign: model.Campaign{ID: 1, Name: "a", Status: model.CampaignFailed}},
	}}
	h := campaignRoutes(&controller.CampaignController{CampaignService: svc})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/campaigns", nil))

	require.Equal(t, http.StatusOK, w.Code)
	data, ok := decode(t, w)["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 2)
	first := data[0].(map[string]interface{})
	assert.Equal(t, float64(2), first["id"])
	assert.Equal(t, float64(3), first["message_count"])
	assert.Equal(t, int64(7), svc.gotUserID)
}

func TestListCampaignsEmpty(t *testing.T) {
	h := campaignRoutes(&controller.CampaignController{CampaignService: &MockCampaignService{}})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/campaigns", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())
}

func TestGetCampaignDetails(t *testing.T) {
	now := time.Now()
	svc := &MockCampaignService{details: &service.CampaignDetails{
		Campaign: &model.Campaign{ID: 5, Name: "x", Status: model.CampaignCompleted, CompletedAt: &now},
		Messages: []*model.Message{{ID: 1, CampaignID: 5, Recipient: "549111", Status: model.OutcomeSent}},
	}}
	h := campaignRoutes(&controller.CampaignController{CampaignService: svc})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/campaigns/5", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(5), body["id"])
	assert.Len(t, body["messages"], 1)
}

func TestGetCampaignDetailsErrors(t *testing.T) {
	svc := &MockCampaignService{detailErr: appErrors.NewCampaignNotFound(9)}
	h := campaignRoutes(&controller.CampaignController{CampaignService: svc})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/campaigns/9", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/campaigns/abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
