package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-payment-core/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentMethodRepository interface {
	Upsert(ctx context.Context, tx *gorm.DB, method *model.PaymentMethod) error
	FindByOwner(ctx context.Context, ownerID string) ([]*model.PaymentMethod, error)
	GetDefaultToken(ctx context.Context, ownerID string) (string, error)
}

type paymentMethodRepoImpl struct {
	db *gorm.DB
}

func NewPaymentMethodRepository(db *gorm.DB) PaymentMethodRepository {
	return &paymentMethodRepoImpl{
		db: db,
	}
}

func (r *paymentMethodRepoImpl) Upsert(ctx context.Context, tx *gorm.DB, method *model.PaymentMethod) error {
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}, {Name: "gateway_token"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_four":  method.LastFour,
			"brand":      method.Brand,
			"updated_at": time.Now(),
		}),
	}).Create(method).Error
}

func (r *paymentMethodRepoImpl) FindByOwner(ctx context.Context, ownerID string) ([]*model.PaymentMethod, error) {
	var methods []*model.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Find(&methods).Error

	if err != nil {
		return nil, err
	}

	return methods, nil
}

func (r *paymentMethodRepoImpl) GetDefaultToken(ctx context.Context, ownerID string) (string, error) {
	var method model.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("is_default DESC, updated_at DESC").
		First(&method).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("no saved payment method for owner %s", ownerID)
		}
		return "", err
	}

	return method.GatewayToken, nil
}
