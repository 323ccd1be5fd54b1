package model

// Wire shapes for gateway webhook payloads. Only the fields the ingestor
// reads are mapped.

type GatewayCard struct {
	Brand    string `json:"brand"`
	LastFour string `json:"last4"`
}

type GatewayObject struct {
	ID       string `json:"id"` // intent id, method token or charge id
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`

	// payment_method.attached
	CustomerID string      `json:"customer_id"`
	Card       GatewayCard `json:"card"`

	// charge.* events reference the intent indirectly
	PaymentIntentID string `json:"payment_intent"`
	AmountRefunded  int64  `json:"amount_refunded"`

	DeclineCode string `json:"decline_code"`
}

type GatewayEventData struct {
	Object GatewayObject `json:"object"`
}

type GatewayWebhookEvent struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	CreatedAt int64            `json:"created"`
	Data      GatewayEventData `json:"data"`
}
