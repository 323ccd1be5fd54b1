package repository

import (
	"context"
	"time"

	"order-payment-core/internal/model"

	"gorm.io/gorm"
)

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	CreateOrderItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error
	FindByID(ctx context.Context, orderID string) (*model.Order, error)
	LockByID(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error)
	GetOrderItems(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.OrderItem, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, orderID string, fromStatuses []string, toStatus string) (bool, error)
	SetStockState(ctx context.Context, tx *gorm.DB, orderID, state string) error
	FlagForReview(ctx context.Context, tx *gorm.DB, orderID string) error
	FindExpiredReservations(ctx context.Context, cutoff time.Time, limit int) ([]*model.Order, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Create(order).Error
}

func (r *orderRepoImpl) CreateOrderItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error {
	return tx.WithContext(ctx).Create(&items).Error
}

func (r *orderRepoImpl) FindByID(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", orderID).
		First(&order).Error

	if err != nil {
		return nil, err
	}

	return &order, nil
}

// LockByID takes the order row lock that serializes webhook-driven state
// transitions per order.
func (r *orderRepoImpl) LockByID(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error) {
	var order model.Order
	err := withRowLock(tx.WithContext(ctx)).
		Where("id = ?", orderID).
		First(&order).Error

	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) GetOrderItems(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.OrderItem, error) {
	var items []*model.OrderItem
	err := tx.WithContext(ctx).
		Where("order_id = ?", orderID).
		Find(&items).Error

	if err != nil {
		return nil, err
	}

	return items, nil
}

// UpdateStatus transitions the order only when its current status is in
// fromStatuses. Returns false when no row matched (already transitioned).
func (r *orderRepoImpl) UpdateStatus(ctx context.Context, tx *gorm.DB, orderID string, fromStatuses []string, toStatus string) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status IN ?", orderID, fromStatuses).
		Updates(map[string]interface{}{
			"status":     toStatus,
			"updated_at": time.Now(),
		})

	return result.RowsAffected > 0, result.Error
}

func (r *orderRepoImpl) SetStockState(ctx context.Context, tx *gorm.DB, orderID, state string) error {
	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"stock_state": state,
			"updated_at":  time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *orderRepoImpl) FlagForReview(ctx context.Context, tx *gorm.DB, orderID string) error {
	return tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"flagged_for_review": true,
			"updated_at":         time.Now(),
		}).Error
}

// FindExpiredReservations returns orders whose stock is still reserved but
// whose checkout can no longer complete: abandoned AWAITING_PAYMENT orders
// past the cutoff, and failed/cancelled orders whose release did not stick.
func (r *orderRepoImpl) FindExpiredReservations(ctx context.Context, cutoff time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("stock_state = ?", model.StockStateReserved).
		Where(
			r.db.Where("status IN ?", []string{model.OrderStatusFailed, model.OrderStatusCancelled}).
				Or("status IN ? AND created_at < ?", []string{model.OrderStatusCreated, model.OrderStatusAwaitingPayment}, cutoff),
		).
		Limit(limit).
		Find(&orders).Error

	if err != nil {
		return nil, err
	}

	return orders, nil
}
