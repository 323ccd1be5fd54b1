package service

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"order-payment-core/internal/model"
	"order-payment-core/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutOfStockError names the first SKU whose available quantity could not
// cover the request. Recoverable: the caller reports it to the shopper.
type OutOfStockError struct {
	ProductID string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}

// LockTimeoutError surfaces after the bounded retry budget for lock
// contention is exhausted. Recoverable: the shopper can retry checkout.
type LockTimeoutError struct {
	Attempts int
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("inventory lock not acquired after %d attempts", e.Attempts)
}

type ReserveItem struct {
	ProductID string
	Quantity  int64
}

// InventoryLocker is the only code path allowed to mutate
// available_quantity/reserved_quantity. The reservation token is the order
// id; commit and release consult the order's stock state under its row lock,
// which makes both idempotent.
type InventoryLocker interface {
	Reserve(ctx context.Context, orderID string, items []ReserveItem) error
	Commit(ctx context.Context, tx *gorm.DB, orderID string) error
	Release(ctx context.Context, tx *gorm.DB, orderID string) error
}

type inventoryLockerImpl struct {
	db            *gorm.DB
	orderRepo     repository.OrderRepository
	inventoryRepo repository.InventoryRepository
	logger        *zap.Logger
	maxRetries    int
	backoffBase   time.Duration
}

func NewInventoryLocker(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	inventoryRepo repository.InventoryRepository,
	logger *zap.Logger,
	maxRetries int,
	backoffBase time.Duration,
) InventoryLocker {
	return &inventoryLockerImpl{
		db:            db,
		orderRepo:     orderRepo,
		inventoryRepo: inventoryRepo,
		logger:        logger,
		maxRetries:    maxRetries,
		backoffBase:   backoffBase,
	}
}

// Reserve decrements available stock and tracks it as reserved, all-or-nothing
// within one transaction. Rows are locked in ascending product id order so
// concurrent carts sharing SKUs cannot deadlock.
func (l *inventoryLockerImpl) Reserve(ctx context.Context, orderID string, items []ReserveItem) error {
	wanted, productIDs, err := mergeItems(items)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			records, err := l.inventoryRepo.LockByProductIDs(ctx, tx, productIDs)
			if err != nil {
				return fmt.Errorf("lock inventory rows: %w", err)
			}

			byID := make(map[string]*model.InventoryRecord, len(records))
			for _, rec := range records {
				byID[rec.ProductID] = rec
			}

			for _, id := range productIDs {
				rec, ok := byID[id]
				if !ok || rec.AvailableQuantity < wanted[id] {
					return &OutOfStockError{ProductID: id}
				}
			}

			for _, id := range productIDs {
				if err := l.inventoryRepo.Adjust(ctx, tx, id, -wanted[id], wanted[id]); err != nil {
					return fmt.Errorf("apply reservation: %w", err)
				}
			}

			return l.orderRepo.SetStockState(ctx, tx, orderID, model.StockStateReserved)
		})

		if err == nil {
			return nil
		}
		if !isLockContention(err) {
			return err
		}
		if attempt >= l.maxRetries {
			return &LockTimeoutError{Attempts: attempt + 1}
		}

		l.logger.Warn("inventory lock contention, retrying",
			zap.String("order_id", orderID),
			zap.Int("attempt", attempt+1),
		)
		if err := sleepJittered(ctx, l.backoffBase, attempt); err != nil {
			return err
		}
	}
}

// Commit converts the reservation into a permanent decrement. Available
// stock was already reduced at reserve time; only the reserved counter drops.
func (l *inventoryLockerImpl) Commit(ctx context.Context, tx *gorm.DB, orderID string) error {
	return l.withTx(ctx, tx, func(tx *gorm.DB) error {
		return l.applyStockTransition(ctx, tx, orderID, model.StockStateCommitted, func(id string, qty int64) error {
			return l.inventoryRepo.Adjust(ctx, tx, id, 0, -qty)
		})
	})
}

// Release reverses a reservation. Safe to call twice: a second call finds
// the stock state already past RESERVED and does nothing.
func (l *inventoryLockerImpl) Release(ctx context.Context, tx *gorm.DB, orderID string) error {
	return l.withTx(ctx, tx, func(tx *gorm.DB) error {
		return l.applyStockTransition(ctx, tx, orderID, model.StockStateReleased, func(id string, qty int64) error {
			return l.inventoryRepo.Adjust(ctx, tx, id, qty, -qty)
		})
	})
}

func (l *inventoryLockerImpl) applyStockTransition(ctx context.Context, tx *gorm.DB, orderID, toState string, adjust func(id string, qty int64) error) error {
	order, err := l.orderRepo.LockByID(ctx, tx, orderID)
	if err != nil {
		return fmt.Errorf("lock order %s: %w", orderID, err)
	}
	if order.StockState != model.StockStateReserved {
		return nil // already committed or released
	}

	items, err := l.orderRepo.GetOrderItems(ctx, tx, orderID)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}

	wanted := make(map[string]int64, len(items))
	productIDs := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := wanted[item.ProductID]; !ok {
			productIDs = append(productIDs, item.ProductID)
		}
		wanted[item.ProductID] += item.Quantity
	}
	sort.Strings(productIDs)

	if _, err := l.inventoryRepo.LockByProductIDs(ctx, tx, productIDs); err != nil {
		return fmt.Errorf("lock inventory rows: %w", err)
	}

	for _, id := range productIDs {
		if err := adjust(id, wanted[id]); err != nil {
			return err
		}
	}

	return l.orderRepo.SetStockState(ctx, tx, orderID, toState)
}

func (l *inventoryLockerImpl) withTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return l.db.WithContext(ctx).Transaction(fn)
}

func mergeItems(items []ReserveItem) (map[string]int64, []string, error) {
	if len(items) == 0 {
		return nil, nil, fmt.Errorf("reservation requires at least one item")
	}

	wanted := make(map[string]int64, len(items))
	productIDs := make([]string, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, nil, fmt.Errorf("item quantity must be positive")
		}
		if _, ok := wanted[item.ProductID]; !ok {
			productIDs = append(productIDs, item.ProductID)
		}
		wanted[item.ProductID] += item.Quantity
	}
	// global lock-acquisition order: ascending product id
	sort.Strings(productIDs)

	return wanted, productIDs, nil
}

func sleepJittered(ctx context.Context, base time.Duration, attempt int) error {
	backoff := base << attempt
	delay := backoff/2 + time.Duration(rand.Int63n(int64(backoff)))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isLockContention(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	// postgres lock_timeout (55P03), deadlock (40P01), sqlite busy
	return strings.Contains(msg, "55p03") ||
		strings.Contains(msg, "40p01") ||
		strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "lock timeout") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
