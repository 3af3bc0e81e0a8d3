package services

import (
	"context"
	"errors"
	"time"

	"github.com/kisanai/backend/internal/i18n"
	"github.com/kisanai/backend/internal/models"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists for user")
)

// ProfileStore is the single logical table of farmer profiles keyed by the
// owning user id.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.FarmerProfile, error)
	// Create inserts a profile and returns the stored row. A second profile
	// for the same user fails with ErrProfileExists.
	Create(ctx context.Context, req *models.CreateProfileRequest) (*models.FarmerProfile, error)
	// Update applies patch and returns the post-update row.
	Update(ctx context.Context, userID string, patch *models.ProfilePatch) (*models.FarmerProfile, error)
	Close(ctx context.Context) error
}

// newProfileRow builds the row Create stores. created_at and updated_at are
// identical on insert.
func newProfileRow(id string, req *models.CreateProfileRequest, now time.Time) *models.FarmerProfile {
	ts := models.Timestamp(now)
	lang := req.PreferredLanguage
	if !lang.Valid() {
		lang = i18n.DefaultLanguage
	}
	prof := &models.FarmerProfile{
		ID:                id,
		UserID:            req.UserID,
		Name:              req.Name,
		Phone:             req.Phone,
		Email:             req.Email,
		Location:          req.Location,
		FarmSize:          req.FarmSize,
		SoilType:          req.SoilType,
		WaterSource:       req.WaterSource,
		Crops:             models.NormalizeCrops(req.Crops),
		PreferredLanguage: lang,
		CreatedAt:         ts,
		UpdatedAt:         ts,
	}
	return prof
}
