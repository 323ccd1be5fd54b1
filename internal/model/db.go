package model

import "time"

// Order statuses. An order is immutable once refunded.
const (
	OrderStatusCreated           = "CREATED"
	OrderStatusAwaitingPayment   = "AWAITING_PAYMENT"
	OrderStatusPaid              = "PAID"
	OrderStatusFailed            = "FAILED"
	OrderStatusCancelled         = "CANCELLED"
	OrderStatusRefunded          = "REFUNDED"
	OrderStatusPartiallyRefunded = "PARTIALLY_REFUNDED"
)

// Stock states track the reservation lifecycle for an order so that
// commit/release are safe to apply twice.
const (
	StockStateNone      = "NONE"
	StockStateReserved  = "RESERVED"
	StockStateCommitted = "COMMITTED"
	StockStateReleased  = "RELEASED"
)

const (
	PaymentStatusPending           = "PENDING"
	PaymentStatusSucceeded         = "SUCCEEDED"
	PaymentStatusFailed            = "FAILED"
	PaymentStatusRefunded          = "REFUNDED"
	PaymentStatusPartiallyRefunded = "PARTIALLY_REFUNDED"
)

// Product holds the catalog's price snapshot, ingested at checkout-initiation
// time. Prices are integers in minor currency units.
type Product struct {
	ID       string `gorm:"primaryKey;size:64;not null"` // product sku
	Price    int64  `gorm:"not null"`
	Currency string `gorm:"size:8;not null"`
}

type Order struct {
	ID               string `gorm:"primaryKey;size:64;not null"`
	BuyerID          string `gorm:"size:64;index;not null"`
	Status           string `gorm:"size:32;index;not null"`
	Amount           int64  `gorm:"not null"` // sum of line items at creation time
	Currency         string `gorm:"size:8;not null"`
	StockState       string `gorm:"size:16;index;not null"`
	FlaggedForReview bool   `gorm:"not null;default:false"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type OrderItem struct {
	ID uint `gorm:"primaryKey"`
	// FK → orders.id
	OrderID string `gorm:"size:64;index;not null"`
	// FK → products.id
	ProductID string `gorm:"index;not null"`
	Quantity  int64  `gorm:"not null"`
	UnitPrice int64  `gorm:"not null"` // snapshot at order creation, never re-derived
	Currency  string `gorm:"size:8;not null"`

	CreatedAt time.Time
}

// InventoryRecord rows are mutated exclusively through the inventory locker.
type InventoryRecord struct {
	ProductID         string `gorm:"primaryKey;size:64;not null"`
	AvailableQuantity int64  `gorm:"not null"`
	ReservedQuantity  int64  `gorm:"not null"`
	Version           int64  `gorm:"not null"` // bumps on every mutation
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Payment struct {
	ID             string `gorm:"primaryKey;size:64;not null"`
	OrderID        string `gorm:"size:64;index;not null"`
	IntentID       string `gorm:"size:128;uniqueIndex;not null"` // gateway payment intent id
	Amount         int64  `gorm:"not null"`
	Currency       string `gorm:"size:8;not null"`
	Status         string `gorm:"size:32;index;not null"`
	AttemptNumber  int    `gorm:"not null"`
	RefundedAmount int64  `gorm:"not null"` // running sum of issued refunds
	IsRefunded     bool   `gorm:"not null;default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProcessedWebhookEvent is the idempotency ledger: a row is inserted before
// any side effect of a webhook is applied, so a duplicate delivery becomes
// a no-op.
type ProcessedWebhookEvent struct {
	EventID     string `gorm:"primaryKey;size:128;not null"`
	EventType   string `gorm:"size:64;index"`
	ProcessedAt time.Time
	CreatedAt   time.Time
}

// PaymentMethod is a saved instrument. Only the gateway token and display
// metadata are stored, never raw card data.
type PaymentMethod struct {
	OwnerID      string `gorm:"primaryKey;size:64;not null"`
	GatewayToken string `gorm:"primaryKey;size:128;uniqueIndex;not null"`
	LastFour     string `gorm:"size:4"`
	Brand        string `gorm:"size:32"`
	IsDefault    bool   `gorm:"not null;default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
