package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/entity"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/model"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type paymentRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *gorm.DB, logger *zap.Logger) repository.PaymentRepository {
	return &paymentRepository{db: db, logger: logger}
}

func (r *paymentRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).
		Where("gateway_payment_id = ?", gatewayPaymentID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get payment",
			zap.String("gateway_payment_id", gatewayPaymentID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// CreateIfAbsent uses ON CONFLICT so duplicate deliveries never add a second ledger row
func (r *paymentRepository) CreateIfAbsent(ctx context.Context, payment *model.Payment) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway_payment_id"}},
			DoNothing: true,
		}).
		Create(payment)
	if result.Error != nil {
		r.logger.Error("Failed to record payment",
			zap.String("gateway_payment_id", payment.GatewayPaymentID),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to record payment: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListByUserID returns the user's payments newest first
func (r *paymentRepository) ListByUserID(ctx context.Context, userID uuid.UUID, params entity.PaginationParams) ([]*model.Payment, int64, error) {
	var (
		payments []*model.Payment
		total    int64
	)

	// Count the whole ledger before paging
	query := r.db.WithContext(ctx).Model(&model.Payment{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		r.logger.Error("Failed to count payments",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	// Apply pagination
	err := query.
		Order("created_at DESC, id DESC").
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&payments).Error
	if err != nil {
		r.logger.Error("Failed to list payments",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}

	return payments, total, nil
}
