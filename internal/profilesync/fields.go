package profilesync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kisanai/backend/internal/models"
)

var ErrUnknownField = errors.New("unknown profile field")

// FieldKey names an editable profile field. Each editor control carries one.
type FieldKey string

const (
	FieldName        FieldKey = "name"
	FieldPhone       FieldKey = "phone"
	FieldEmail       FieldKey = "email"
	FieldLocation    FieldKey = "location"
	FieldFarmSize    FieldKey = "farm_size"
	FieldSoilType    FieldKey = "soil_type"
	FieldWaterSource FieldKey = "water_source"
	FieldCrops       FieldKey = "crops"
)

var editable = []FieldKey{
	FieldName, FieldPhone, FieldEmail, FieldLocation,
	FieldFarmSize, FieldSoilType, FieldWaterSource, FieldCrops,
}

// Fields lists the editable fields in display order.
func Fields() []FieldKey {
	out := make([]FieldKey, len(editable))
	copy(out, editable)
	return out
}

func ParseFieldKey(s string) (FieldKey, error) {
	k := FieldKey(strings.ToLower(strings.TrimSpace(s)))
	for _, f := range editable {
		if f == k {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// LabelKey is the translation key of the field's label.
func (k FieldKey) LabelKey() string { return "profile." + string(k) }

// Value reads the field from p. Crops are joined with ", ".
func (k FieldKey) Value(p *models.FarmerProfile) string {
	switch k {
	case FieldName:
		return p.Name
	case FieldPhone:
		return p.Phone
	case FieldEmail:
		return p.Email
	case FieldLocation:
		return p.Location
	case FieldFarmSize:
		return p.FarmSize
	case FieldSoilType:
		return p.SoilType
	case FieldWaterSource:
		return p.WaterSource
	case FieldCrops:
		return strings.Join(p.Crops, ", ")
	}
	return ""
}

// set writes value into p. Crops take a comma separated list.
func (k FieldKey) set(p *models.FarmerProfile, value string) error {
	switch k {
	case FieldName:
		p.Name = value
	case FieldPhone:
		p.Phone = value
	case FieldEmail:
		p.Email = value
	case FieldLocation:
		p.Location = value
	case FieldFarmSize:
		p.FarmSize = value
	case FieldSoilType:
		p.SoilType = value
	case FieldWaterSource:
		p.WaterSource = value
	case FieldCrops:
		p.Crops = models.NormalizeCrops(strings.Split(value, ","))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, string(k))
	}
	return nil
}
