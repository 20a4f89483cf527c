package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/wityliti/wityliti.io-sub000/internal/domain/model"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type gatewayReferenceRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGatewayReferenceRepository creates a new gateway reference repository
func NewGatewayReferenceRepository(db *gorm.DB, logger *zap.Logger) repository.GatewayReferenceRepository {
	return &gatewayReferenceRepository{db: db, logger: logger}
}

func (r *gatewayReferenceRepository) Create(ctx context.Context, ref *model.GatewayReference) error {
	// gateway_ref_id is unique; a second reference for the same object is an error
	if err := r.db.WithContext(ctx).Create(ref).Error; err != nil {
		r.logger.Error("Failed to create gateway reference",
			zap.String("gateway_ref_id", ref.GatewayRefID),
			zap.String("kind", ref.Kind),
			zap.Error(err))
		return fmt.Errorf("failed to create gateway reference: %w", err)
	}
	return nil
}

func (r *gatewayReferenceRepository) GetByGatewayRefID(ctx context.Context, gatewayRefID string) (*model.GatewayReference, error) {
	var ref model.GatewayReference
	err := r.db.WithContext(ctx).
		Where("gateway_ref_id = ?", gatewayRefID).
		First(&ref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get gateway reference",
			zap.String("gateway_ref_id", gatewayRefID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get gateway reference: %w", err)
	}
	return &ref, nil
}
