package dto

import "time"

type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type CheckoutRequest struct {
	Items            []*Item `json:"items"`
	SavedMethodToken string  `json:"saved_method_token,omitempty"`
}

type CheckoutResponse struct {
	OrderID      string `json:"order_id"`
	ClientSecret string `json:"client_secret"`
}

type OrderItemResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type OrderResponse struct {
	OrderID   string               `json:"order_id"`
	Status    string               `json:"status"`
	Amount    int64                `json:"amount"`
	Currency  string               `json:"currency"`
	Items     []*OrderItemResponse `json:"items"`
	CreatedAt time.Time            `json:"created_at"`
}

type RefundRequest struct {
	// Zero means refund the full remaining captured amount.
	Amount int64 `json:"amount,omitempty"`
}

type RefundResponse struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	ProductID string `json:"product_id,omitempty"`
}
