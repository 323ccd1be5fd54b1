package handler

import (
	"io"
	"net/http"

	"order-payment-core/internal/service"

	"github.com/labstack/echo/v4"
)

// SignatureHeader carries the gateway's HMAC digest of the request body.
const SignatureHeader = "X-Gateway-Signature"

type WebhookHandler struct {
	webhookService service.WebhookService
}

func NewWebhookHandler(webhookService service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
	}
}

// HandleGatewayWebhook responds 200 for anything persisted as processed,
// including no-op redeliveries; only signature and parse failures get a
// non-2xx, which the gateway will retry.
func (h *WebhookHandler) HandleGatewayWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	outcome, err := h.webhookService.Handle(ctx, body, c.Request().Header.Get(SignatureHeader))
	if outcome == service.WebhookRejected {
		return c.NoContent(http.StatusBadRequest)
	}
	if err != nil {
		return err
	}

	return c.NoContent(http.StatusOK)
}
