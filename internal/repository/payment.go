package repository

import (
	"context"
	"time"

	"order-payment-core/internal/model"

	"gorm.io/gorm"
)

type PaymentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error
	FindByIntentID(ctx context.Context, tx *gorm.DB, intentID string) (*model.Payment, error)
	LockSucceededByOrderID(ctx context.Context, tx *gorm.DB, orderID string) (*model.Payment, error)
	CountByOrderID(ctx context.Context, orderID string) (int64, error)
	MarkStatus(ctx context.Context, tx *gorm.DB, paymentID, status string) error
	AddRefund(ctx context.Context, tx *gorm.DB, paymentID string, amount int64, status string) error
	SetRefundCorroborated(ctx context.Context, tx *gorm.DB, paymentID string) error
	MarkPendingFailedByOrderID(ctx context.Context, tx *gorm.DB, orderID string) error
}

type paymentRepoImpl struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepoImpl{
		db: db,
	}
}

func (r *paymentRepoImpl) Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	return tx.WithContext(ctx).Create(payment).Error
}

func (r *paymentRepoImpl) FindByIntentID(ctx context.Context, tx *gorm.DB, intentID string) (*model.Payment, error) {
	var payment model.Payment
	err := tx.WithContext(ctx).
		Where("intent_id = ?", intentID).
		First(&payment).Error

	if err != nil {
		return nil, err
	}

	return &payment, nil
}

// LockSucceededByOrderID locks the captured payment for an order so that
// concurrent refund requests serialize on it.
func (r *paymentRepoImpl) LockSucceededByOrderID(ctx context.Context, tx *gorm.DB, orderID string) (*model.Payment, error) {
	var payment model.Payment
	err := withRowLock(tx.WithContext(ctx)).
		Where("order_id = ? AND status IN ?", orderID, []string{
			model.PaymentStatusSucceeded,
			model.PaymentStatusPartiallyRefunded,
		}).
		First(&payment).Error

	if err != nil {
		return nil, err
	}

	return &payment, nil
}

func (r *paymentRepoImpl) CountByOrderID(ctx context.Context, orderID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("order_id = ?", orderID).
		Count(&count).Error

	return count, err
}

func (r *paymentRepoImpl) MarkStatus(ctx context.Context, tx *gorm.DB, paymentID, status string) error {
	return tx.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", paymentID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (r *paymentRepoImpl) AddRefund(ctx context.Context, tx *gorm.DB, paymentID string, amount int64, status string) error {
	return tx.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", paymentID).
		Updates(map[string]interface{}{
			"refunded_amount": gorm.Expr("refunded_amount + ?", amount),
			"status":          status,
			"updated_at":      time.Now(),
		}).Error
}

// SetRefundCorroborated flips is_refunded once the gateway webhook confirms
// the refund; business decisions like re-stocking key off this flag.
func (r *paymentRepoImpl) SetRefundCorroborated(ctx context.Context, tx *gorm.DB, paymentID string) error {
	return tx.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", paymentID).
		Updates(map[string]interface{}{
			"is_refunded": true,
			"updated_at":  time.Now(),
		}).Error
}

func (r *paymentRepoImpl) MarkPendingFailedByOrderID(ctx context.Context, tx *gorm.DB, orderID string) error {
	return tx.WithContext(ctx).Model(&model.Payment{}).
		Where("order_id = ? AND status = ?", orderID, model.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":     model.PaymentStatusFailed,
			"updated_at": time.Now(),
		}).Error
}
