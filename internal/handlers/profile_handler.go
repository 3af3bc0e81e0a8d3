package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kisanai/backend/internal/logger"
	"github.com/kisanai/backend/internal/middleware"
	"github.com/kisanai/backend/internal/models"
	"github.com/kisanai/backend/internal/services"
)

type ProfileHandler struct {
	profiles services.ProfileStore
	log      *logger.Logger
	timeout  time.Duration
}

func NewProfileHandler(profiles services.ProfileStore, log *logger.Logger, timeout time.Duration) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, log: log, timeout: timeout}
}

// GetProfile answers 404 when the user has no profile yet. Clients create
// one in that case, so it must stay distinguishable from a server error.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	prof, err := h.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Profile not found"))
			return
		}
		h.log.Error("get profile failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to load profile"))
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(prof))
}

func (h *ProfileHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	var req models.CreateProfileRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		req.UserID = userID
	}
	if req.UserID != userID {
		writeJSON(w, http.StatusForbidden, models.NewErrorResponse("Cannot create a profile for another user"))
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	prof, err := h.profiles.Create(ctx, &req)
	if err != nil {
		if errors.Is(err, services.ErrProfileExists) {
			writeJSON(w, http.StatusConflict, models.NewErrorResponse("Profile already exists"))
			return
		}
		h.log.Error("create profile failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to create profile"))
		return
	}
	h.log.Info("profile created", "user_id", userID, "profile_id", prof.ID)
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(prof))
}

// UpdateProfile rejects bodies carrying anything but mutable fields, so a
// patch can never rewrite identity or creation time.
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	var patch models.ProfilePatch
	if err := decodeJSON(w, r, &patch, true); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}
	if errs := patch.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	prof, err := h.profiles.Update(ctx, userID, &patch)
	if err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Profile not found"))
			return
		}
		h.log.Error("update profile failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to update profile"))
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(prof))
}
