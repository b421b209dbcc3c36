package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	appErrors "github.com/HugoP8/whazaaa/internal/errors"
	"github.com/HugoP8/whazaaa/internal/logger"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", zap.Error(err))
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case appErrors.IsValidation(err):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case appErrors.IsNotFound(err):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, appErrors.ErrNotConnected):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, appErrors.ErrCampaignFinished):
		writeMessage(w, http.StatusConflict, err.Error())
	default:
		logger.Error("❌ request failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}
