package repository

import (
	"context"
	"fmt"
	"time"

	"order-payment-core/internal/model"

	"gorm.io/gorm"
)

type InventoryRepository interface {
	LockByProductIDs(ctx context.Context, tx *gorm.DB, productIDs []string) ([]*model.InventoryRecord, error)
	Adjust(ctx context.Context, tx *gorm.DB, productID string, availableDelta, reservedDelta int64) error
	FindByProductID(ctx context.Context, productID string) (*model.InventoryRecord, error)
}

type inventoryRepoImpl struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) InventoryRepository {
	return &inventoryRepoImpl{
		db: db,
	}
}

// LockByProductIDs locks inventory rows in ascending product id order; every
// caller sees the same lock order, which is what keeps concurrent multi-SKU
// reservations deadlock-free.
func (r *inventoryRepoImpl) LockByProductIDs(ctx context.Context, tx *gorm.DB, productIDs []string) ([]*model.InventoryRecord, error) {
	var records []*model.InventoryRecord
	err := withRowLock(tx.WithContext(ctx)).
		Where("product_id IN ?", productIDs).
		Order("product_id ASC").
		Find(&records).Error

	if err != nil {
		return nil, err
	}

	return records, nil
}

// Adjust applies quantity deltas and bumps the version. The caller must hold
// the row lock; the version bump still detects lost updates if a non-locking
// strategy is ever substituted.
func (r *inventoryRepoImpl) Adjust(ctx context.Context, tx *gorm.DB, productID string, availableDelta, reservedDelta int64) error {
	result := tx.WithContext(ctx).Model(&model.InventoryRecord{}).
		Where("product_id = ?", productID).
		Updates(map[string]interface{}{
			"available_quantity": gorm.Expr("available_quantity + ?", availableDelta),
			"reserved_quantity":  gorm.Expr("reserved_quantity + ?", reservedDelta),
			"version":            gorm.Expr("version + 1"),
			"updated_at":         time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("inventory record %s: %w", productID, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *inventoryRepoImpl) FindByProductID(ctx context.Context, productID string) (*model.InventoryRecord, error) {
	var record model.InventoryRecord
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		First(&record).Error

	if err != nil {
		return nil, err
	}

	return &record, nil
}
