package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kisanai/backend/internal/models"
)

// SQLProfileService stores profiles in a relational table through gorm.
type SQLProfileService struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) a CGO-free sqlite database at path.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// NewSQLProfileService migrates the profile table, including the unique
// index on user_id.
func NewSQLProfileService(ctx context.Context, db *gorm.DB) (*SQLProfileService, error) {
	if err := db.WithContext(ctx).AutoMigrate(&models.FarmerProfile{}); err != nil {
		return nil, fmt.Errorf("automigrate profiles: %w", err)
	}
	return &SQLProfileService{db: db, now: time.Now}, nil
}

func (s *SQLProfileService) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLProfileService) GetByUserID(ctx context.Context, userID string) (*models.FarmerProfile, error) {
	var prof models.FarmerProfile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&prof).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &prof, nil
}

func (s *SQLProfileService) Create(ctx context.Context, req *models.CreateProfileRequest) (*models.FarmerProfile, error) {
	prof := newProfileRow(uuid.NewString(), req, s.now())
	if err := s.db.WithContext(ctx).Create(prof).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, ErrProfileExists
		}
		return nil, err
	}
	return s.GetByUserID(ctx, req.UserID)
}

func (s *SQLProfileService) Update(ctx context.Context, userID string, patch *models.ProfilePatch) (*models.FarmerProfile, error) {
	var out models.FarmerProfile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prof models.FarmerProfile
		if err := tx.Where("user_id = ?", userID).First(&prof).Error; err != nil {
			return err
		}
		patch.Apply(&prof)
		prof.UpdatedAt = patch.NextUpdatedAt(s.now(), prof.UpdatedAt)
		if err := tx.Save(&prof).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).First(&out).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
