package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/model"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type planRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *gorm.DB, logger *zap.Logger) repository.PlanRepository {
	return &planRepository{db: db, logger: logger}
}

// GetByID returns inactive plans too; callers decide whether they are purchasable
func (r *planRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Plan, error) {
	var plan model.Plan
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get plan",
			zap.String("plan_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &plan, nil
}
