package models

import (
	"net/mail"
	"strings"
	"time"

	"github.com/kisanai/backend/internal/i18n"
)

// Display fallbacks for optional profile fields.
const (
	DefaultFarmSize    = "5 acres"
	DefaultSoilType    = "Alluvial"
	DefaultWaterSource = "Borewell"
	DefaultLocation    = "India"
	DefaultPhone       = "Not provided"
)

const maxNameLength = 120

// DefaultCrops returns a fresh copy of the starter crop list.
func DefaultCrops() []string {
	return []string{"Rice", "Wheat", "Sugarcane"}
}

// FarmerProfile is a farmer's contact and farm data keyed by the owning
// user id. At most one exists per user; the store enforces it.
type FarmerProfile struct {
	ID                string        `json:"id" bson:"_id" gorm:"primaryKey;size:64"`
	UserID            string        `json:"user_id" bson:"user_id" gorm:"uniqueIndex;size:128;not null"`
	Name              string        `json:"name" bson:"name"`
	Phone             string        `json:"phone" bson:"phone"`
	Email             string        `json:"email" bson:"email"`
	Location          string        `json:"location" bson:"location"`
	FarmSize          string        `json:"farm_size" bson:"farm_size"`
	SoilType          string        `json:"soil_type" bson:"soil_type"`
	WaterSource       string        `json:"water_source" bson:"water_source"`
	Crops             []string      `json:"crops" bson:"crops" gorm:"serializer:json"`
	PreferredLanguage i18n.Language `json:"preferred_language" bson:"preferred_language" gorm:"size:8"`
	CreatedAt         time.Time     `json:"created_at" bson:"created_at" gorm:"autoCreateTime:false"`
	UpdatedAt         time.Time     `json:"updated_at" bson:"updated_at" gorm:"autoUpdateTime:false"`
}

func (FarmerProfile) TableName() string { return "farmer_profiles" }

// Clone returns a deep copy.
func (p *FarmerProfile) Clone() *FarmerProfile {
	if p == nil {
		return nil
	}
	c := *p
	if p.Crops != nil {
		c.Crops = append([]string(nil), p.Crops...)
	}
	return &c
}

// ApplyDisplayDefaults fills empty optional fields so no screen renders a
// blank value. Identity and audit fields are left alone.
func (p *FarmerProfile) ApplyDisplayDefaults() {
	if len(p.Crops) == 0 {
		p.Crops = DefaultCrops()
	}
	if strings.TrimSpace(p.FarmSize) == "" {
		p.FarmSize = DefaultFarmSize
	}
	if strings.TrimSpace(p.SoilType) == "" {
		p.SoilType = DefaultSoilType
	}
	if strings.TrimSpace(p.WaterSource) == "" {
		p.WaterSource = DefaultWaterSource
	}
	if strings.TrimSpace(p.Location) == "" {
		p.Location = DefaultLocation
	}
	if strings.TrimSpace(p.Phone) == "" {
		p.Phone = DefaultPhone
	}
	if !p.PreferredLanguage.Valid() {
		p.PreferredLanguage = i18n.DefaultLanguage
	}
}

type CreateProfileRequest struct {
	UserID            string        `json:"user_id"`
	Name              string        `json:"name"`
	Phone             string        `json:"phone"`
	Email             string        `json:"email"`
	Location          string        `json:"location"`
	FarmSize          string        `json:"farm_size"`
	SoilType          string        `json:"soil_type"`
	WaterSource       string        `json:"water_source"`
	Crops             []string      `json:"crops"`
	PreferredLanguage i18n.Language `json:"preferred_language"`
}

// NewDefaultProfileRequest derives a first profile from the session: the
// name is the local part of the email.
func NewDefaultProfileRequest(userID, email string, lang i18n.Language) CreateProfileRequest {
	name := "Farmer"
	if at := strings.Index(email, "@"); at > 0 {
		name = email[:at]
	}
	if !lang.Valid() {
		lang = i18n.DefaultLanguage
	}
	return CreateProfileRequest{
		UserID:            userID,
		Name:              name,
		Email:             email,
		Phone:             "",
		Location:          DefaultLocation,
		FarmSize:          DefaultFarmSize,
		SoilType:          DefaultSoilType,
		WaterSource:       DefaultWaterSource,
		Crops:             DefaultCrops(),
		PreferredLanguage: lang,
	}
}

func (r *CreateProfileRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if strings.TrimSpace(r.UserID) == "" {
		errors["user_id"] = "User ID is required"
	}
	validateName(errors, r.Name)
	validateEmail(errors, r.Email)
	if r.PreferredLanguage != "" && !r.PreferredLanguage.Valid() {
		errors["preferred_language"] = "Unsupported language"
	}
	return errors
}

// ProfilePatch is a partial update of the mutable profile fields. Nil means
// "leave unchanged". UpdatedAt is the client's save time; the store treats
// it as a lower bound only.
type ProfilePatch struct {
	Name              *string        `json:"name,omitempty"`
	Phone             *string        `json:"phone,omitempty"`
	Email             *string        `json:"email,omitempty"`
	Location          *string        `json:"location,omitempty"`
	FarmSize          *string        `json:"farm_size,omitempty"`
	SoilType          *string        `json:"soil_type,omitempty"`
	WaterSource       *string        `json:"water_source,omitempty"`
	Crops             *[]string      `json:"crops,omitempty"`
	PreferredLanguage *i18n.Language `json:"preferred_language,omitempty"`
	UpdatedAt         *time.Time     `json:"updated_at,omitempty"`
}

func (p *ProfilePatch) Validate() map[string]string {
	errors := make(map[string]string)
	if p.Name != nil {
		validateName(errors, *p.Name)
		if strings.TrimSpace(*p.Name) == "" {
			errors["name"] = "Name cannot be empty"
		}
	}
	if p.Email != nil {
		validateEmail(errors, *p.Email)
	}
	if p.PreferredLanguage != nil && !p.PreferredLanguage.Valid() {
		errors["preferred_language"] = "Unsupported language"
	}
	return errors
}

// Apply copies the set fields onto prof. It never touches ID, UserID,
// CreatedAt or UpdatedAt.
func (p *ProfilePatch) Apply(prof *FarmerProfile) {
	if p.Name != nil {
		prof.Name = strings.TrimSpace(*p.Name)
	}
	if p.Phone != nil {
		prof.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.Email != nil {
		prof.Email = strings.TrimSpace(*p.Email)
	}
	if p.Location != nil {
		prof.Location = strings.TrimSpace(*p.Location)
	}
	if p.FarmSize != nil {
		prof.FarmSize = strings.TrimSpace(*p.FarmSize)
	}
	if p.SoilType != nil {
		prof.SoilType = strings.TrimSpace(*p.SoilType)
	}
	if p.WaterSource != nil {
		prof.WaterSource = strings.TrimSpace(*p.WaterSource)
	}
	if p.Crops != nil {
		prof.Crops = NormalizeCrops(*p.Crops)
	}
	if p.PreferredLanguage != nil {
		prof.PreferredLanguage = *p.PreferredLanguage
	}
}

// NextUpdatedAt picks the timestamp a save should record: the latest of the
// server clock, the client hint and the previous value.
func (p *ProfilePatch) NextUpdatedAt(now, previous time.Time) time.Time {
	next := now
	if p.UpdatedAt != nil && p.UpdatedAt.After(next) {
		next = *p.UpdatedAt
	}
	if previous.After(next) {
		next = previous
	}
	return Timestamp(next)
}

// NormalizeCrops trims entries and drops blanks, keeping order.
func NormalizeCrops(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Timestamp truncates to milliseconds and UTC so every store round-trips it.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func validateName(errors map[string]string, name string) {
	if len(strings.TrimSpace(name)) > maxNameLength {
		errors["name"] = "Name is too long"
	}
}

func validateEmail(errors map[string]string, email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		errors["email"] = "Email is invalid"
	}
}
