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
	"gorm.io/gorm/clause"
)

type subscriptionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *gorm.DB, logger *zap.Logger) repository.SubscriptionRepository {
	return &subscriptionRepository{db: db, logger: logger}
}

// GetByUserID retrieves the user's single subscription row
func (r *subscriptionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Subscription, error) {
	return r.first(r.db.WithContext(ctx), "user_id = ?", userID)
}

// GetByGatewaySubscriptionID retrieves the row currently tracking a gateway subscription
func (r *subscriptionRepository) GetByGatewaySubscriptionID(ctx context.Context, gatewaySubscriptionID string) (*model.Subscription, error) {
	return r.first(r.db.WithContext(ctx), "gateway_subscription_id = ?", gatewaySubscriptionID)
}

func (r *subscriptionRepository) first(db *gorm.DB, query string, arg interface{}) (*model.Subscription, error) {
	var sub model.Subscription
	err := db.Where(query, arg).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get subscription",
			zap.String("query", query),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

// CreateIfAbsent relies on the unique user_id index; a concurrent insert loses quietly
func (r *subscriptionRepository) CreateIfAbsent(ctx context.Context, sub *model.Subscription) (bool, error) {
	return r.createIfAbsent(r.db.WithContext(ctx), sub)
}

func (r *subscriptionRepository) createIfAbsent(db *gorm.DB, sub *model.Subscription) (bool, error) {
	result := db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(sub)
	if result.Error != nil {
		r.logger.Error("Failed to create subscription",
			zap.String("user_id", sub.UserID.String()),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to create subscription: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *subscriptionRepository) Save(ctx context.Context, sub *model.Subscription) error {
	return r.save(r.db.WithContext(ctx), sub)
}

// SaveWithPeriodClaim runs the claim and the save in one transaction so a failed save leaves the claim unspent
func (r *subscriptionRepository) SaveWithPeriodClaim(ctx context.Context, sub *model.Subscription, claim repository.PeriodClaim) (bool, error) {
	claimed := true
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Claim the triggering payment
		if claim.GatewayPaymentID != "" {
			result := tx.Model(&model.Payment{}).
				Where("gateway_payment_id = ? AND period_applied = ?", claim.GatewayPaymentID, false).
				Update("period_applied", true)
			if result.Error != nil {
				return fmt.Errorf("failed to claim billing period: %w", result.Error)
			}
			if result.RowsAffected != 1 {
				claimed = false
				return nil
			}
		}

		// Consume payments that arrived before the row could take them
		if claim.GatewaySubscriptionID != "" {
			err := tx.Model(&model.Payment{}).
				Where("gateway_subscription_id = ? AND status = ? AND period_applied = ?",
					claim.GatewaySubscriptionID, model.PaymentStatusPaid, false).
				Update("period_applied", true).Error
			if err != nil {
				return fmt.Errorf("failed to claim billing periods: %w", err)
			}
		}

		return r.save(tx, sub)
	})
	if err != nil {
		r.logger.Error("Failed to save subscription with period claim",
			zap.String("user_id", sub.UserID.String()),
			zap.String("gateway_payment_id", claim.GatewayPaymentID),
			zap.String("gateway_subscription_id", claim.GatewaySubscriptionID),
			zap.Error(err))
		return false, err
	}
	return claimed, nil
}

func (r *subscriptionRepository) save(db *gorm.DB, sub *model.Subscription) error {
	// Insert on first save, falling back to the winner's row id
	if sub.ID == 0 {
		created, err := r.createIfAbsent(db, sub)
		if err != nil {
			return err
		}
		if created {
			return nil
		}
		existing, err := r.first(db, "user_id = ?", sub.UserID)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("subscription for user %s vanished during save", sub.UserID)
		}
		sub.ID = existing.ID
	}

	if err := db.Save(sub).Error; err != nil {
		r.logger.Error("Failed to save subscription",
			zap.String("user_id", sub.UserID.String()),
			zap.String("status", string(sub.Status)),
			zap.Error(err))
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}
