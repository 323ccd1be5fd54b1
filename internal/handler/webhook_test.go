package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"order-payment-core/internal/handler"
	"order-payment-core/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWebhookService struct {
	outcome service.WebhookOutcome
	err     error
	gotBody []byte
	gotSig  string
}

func (s *stubWebhookService) Handle(_ context.Context, body []byte, signature string) (service.WebhookOutcome, error) {
	s.gotBody = body
	s.gotSig = signature
	return s.outcome, s.err
}

func doWebhook(t *testing.T, svc service.WebhookService, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment", strings.NewReader(body))
	req.Header.Set(handler.SignatureHeader, signature)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, handler.NewWebhookHandler(svc).HandleGatewayWebhook(c))
	return rec
}

func TestWebhookHandlerApplied(t *testing.T) {
	svc := &stubWebhookService{outcome: service.WebhookApplied}

	rec := doWebhook(t, svc, `{"id":"evt_1"}`, "sig-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte(`{"id":"evt_1"}`), svc.gotBody)
	assert.Equal(t, "sig-1", svc.gotSig)
}

func TestWebhookHandlerRedeliveryStillOK(t *testing.T) {
	svc := &stubWebhookService{outcome: service.WebhookAlreadyProcessed}

	rec := doWebhook(t, svc, `{"id":"evt_1"}`, "sig-1")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookHandlerRejectedIs400(t *testing.T) {
	svc := &stubWebhookService{outcome: service.WebhookRejected, err: assert.AnError}

	rec := doWebhook(t, svc, `{"id":"evt_1"}`, "bad-sig")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
