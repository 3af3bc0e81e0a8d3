package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kisanai/backend/internal/logger"
	"github.com/kisanai/backend/internal/middleware"
	"github.com/kisanai/backend/internal/models"
	"github.com/kisanai/backend/internal/services"
)

const maxSupportMessage = 4000

// SupportMailer sends a help request to the support inbox.
type SupportMailer interface {
	Configured() bool
	SendSupportEmail(ctx context.Context, ticket string, prof *models.FarmerProfile, message string) error
}

type SupportHandler struct {
	mailer   SupportMailer
	profiles services.ProfileStore
	log      *logger.Logger
	now      func() time.Time
}

func NewSupportHandler(mailer SupportMailer, profiles services.ProfileStore, log *logger.Logger) *SupportHandler {
	return &SupportHandler{mailer: mailer, profiles: profiles, log: log, now: time.Now}
}

func (h *SupportHandler) SubmitSupportRequest(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	var req models.SupportRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}

	msg := strings.TrimSpace(req.Message)
	errs := map[string]string{}
	if msg == "" {
		errs["message"] = "Message is required"
	} else if len(msg) > maxSupportMessage {
		errs["message"] = "Message is too long"
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}

	if h.mailer == nil || !h.mailer.Configured() {
		writeJSON(w, http.StatusServiceUnavailable, models.NewErrorResponse("Support is not available right now"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	// Farmers without a saved profile can still ask for help.
	prof, err := h.profiles.GetByUserID(ctx, sess.UserID)
	if err != nil {
		if !errors.Is(err, services.ErrProfileNotFound) {
			h.log.Warn("support: profile lookup failed", "user_id", sess.UserID, "error", err)
		}
		prof = &models.FarmerProfile{UserID: sess.UserID, Email: sess.Email}
		prof.ApplyDisplayDefaults()
	}

	ticket := generateSupportTicket(h.now())
	if err := h.mailer.SendSupportEmail(ctx, ticket, prof, msg); err != nil {
		h.log.Error("support: sendgrid failed", "ticket", ticket, "error", err)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to send support request"))
		return
	}

	h.log.Info("support request sent", "ticket", ticket, "user_id", sess.UserID)
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(models.SupportTicket{Ticket: ticket}))
}

func generateSupportTicket(now time.Time) string {
	// Example: KA-20260131-032508-A1B2C3D4
	stamp := now.UTC().Format("20060102-150405")
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "KA-" + stamp + "-" + id[:8]
}
