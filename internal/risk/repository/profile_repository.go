// Package repository provides the persistence adapters for the risk core:
// GORM-backed profile storage and Redis-backed halt flags, trade counters and
// assessment caching.
package repository

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/riskcore/internal/risk"
	"github.com/Aidin1998/riskcore/pkg/errors"
)

// GormProfileRepository implements risk.ProfileRepository using GORM.
type GormProfileRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGormProfileRepository(db *gorm.DB, logger *zap.Logger) *GormProfileRepository {
	return &GormProfileRepository{
		db:     db,
		logger: logger.Named("profile-repository"),
	}
}

// Migrate creates the risk profile schema.
func (r *GormProfileRepository) Migrate() error {
	return r.db.AutoMigrate(&risk.RiskProfile{})
}

func (r *GormProfileRepository) Create(ctx context.Context, profile *risk.RiskProfile) error {
	if err := r.db.WithContext(ctx).Create(profile).Error; err != nil {
		r.logger.Error("failed to create risk profile",
			zap.String("user_id", profile.UserID.String()), zap.Error(err))
		return errors.Unavailable.Explain("failed to store risk profile").Wrap(err)
	}
	r.logger.Debug("risk profile created", zap.String("profile_id", profile.ID.String()))
	return nil
}

func (r *GormProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*risk.RiskProfile, error) {
	var profile risk.RiskProfile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound.Explain("risk profile %s not found", id)
		}
		return nil, errors.Unavailable.Explain("failed to load risk profile").Wrap(err)
	}
	return &profile, nil
}

func (r *GormProfileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*risk.RiskProfile, error) {
	var profile risk.RiskProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound.Explain("no risk profile for user %s", userID)
		}
		return nil, errors.Unavailable.Explain("failed to load risk profile").Wrap(err)
	}
	return &profile, nil
}

func (r *GormProfileRepository) Update(ctx context.Context, profile *risk.RiskProfile) error {
	result := r.db.WithContext(ctx).Model(&risk.RiskProfile{}).
		Where("id = ?", profile.ID).
		Select("*").
		Omit("id", "user_id", "created_at").
		Updates(profile)
	if result.Error != nil {
		return errors.Unavailable.Explain("failed to update risk profile").Wrap(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NotFound.Explain("risk profile %s not found", profile.ID)
	}
	return nil
}
