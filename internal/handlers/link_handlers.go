package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/notilink/notilink/internal/models"
	"github.com/notilink/notilink/internal/service"
	"github.com/sirupsen/logrus"
)

type LinkHandlers struct {
	linkService *service.LinkService
	validate    *validator.Validate
	logger      *logrus.Logger
}

func NewLinkHandlers(linkService *service.LinkService, logger *logrus.Logger) *LinkHandlers {
	return &LinkHandlers{
		linkService: linkService,
		validate:    validator.New(),
		logger:      logger,
	}
}

type StartLinkRequest struct {
	ChannelID string `json:"channel_id" validate:"required,oneof=telegram whatsapp"`
}

type ConfirmLinkRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	ChannelID string `json:"channel_id" validate:"required,oneof=telegram whatsapp"`
	Link      string `json:"link" validate:"required"`
	Nonce     string `json:"nonce"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *LinkHandlers) StartLink(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok || userID == "" {
		h.respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated")
		return
	}

	var req StartLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_CHANNEL", "Invalid or missing channel")
		return
	}

	result, err := h.linkService.Start(r.Context(), userID, models.ChannelKind(req.ChannelID))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidChannel):
			h.respondWithError(w, http.StatusBadRequest, "INVALID_CHANNEL", "Invalid or missing channel")
		case errors.Is(err, service.ErrRateLimited):
			h.respondWithError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many link attempts, try again later")
		default:
			h.logger.WithError(err).WithField("user_id", userID).Error("Failed to start link verification")
			h.respondWithError(w, http.StatusInternalServerError, "LINK_START_FAILED", "Failed to start link verification")
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, result)
}

func (h *LinkHandlers) LinkStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok || userID == "" {
		h.respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated")
		return
	}

	nonce := mux.Vars(r)["nonce"]
	if nonce == "" {
		h.respondWithError(w, http.StatusBadRequest, "MISSING_NONCE", "Nonce is required")
		return
	}

	result, err := h.linkService.Status(r.Context(), userID, nonce)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"nonce":   nonce,
		}).Error("Failed to resolve link status")
		h.respondWithError(w, http.StatusInternalServerError, "LINK_STATUS_FAILED", "Failed to resolve link status")
		return
	}

	status := http.StatusOK
	if result.Status == service.StatusExpired {
		status = http.StatusGone
	}

	h.respondWithJSON(w, status, result)
}

func (h *LinkHandlers) ConfirmLink(w http.ResponseWriter, r *http.Request) {
	var req ConfirmLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Missing or invalid confirm fields")
		return
	}

	err := h.linkService.Confirm(r.Context(), service.ConfirmInput{
		UserID:  req.UserID,
		Channel: models.ChannelKind(req.ChannelID),
		Link:    req.Link,
		Nonce:   req.Nonce,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidChannel) {
			h.respondWithError(w, http.StatusBadRequest, "INVALID_CHANNEL", "Invalid or missing channel")
			return
		}
		h.logger.WithError(err).WithField("user_id", req.UserID).Error("Failed to confirm channel link")
		h.respondWithError(w, http.StatusInternalServerError, "LINK_CONFIRM_FAILED", "Failed to confirm channel link")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *LinkHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *LinkHandlers) respondWithError(w http.ResponseWriter, status int, code, message string) {
	h.respondWithJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
