package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"order-payment-core/internal/dto"
	"order-payment-core/internal/handler"
	"order-payment-core/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRefundService struct {
	resp *dto.RefundResponse
	err  error
}

func (s *stubRefundService) Refund(_ context.Context, _ string, _ int64) (*dto.RefundResponse, error) {
	return s.resp, s.err
}

func doRefund(t *testing.T, svc service.RefundService, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("order-1")

	return rec, handler.NewRefundHandler(svc).Refund(c)
}

func TestRefundHandlerSuccess(t *testing.T) {
	svc := &stubRefundService{resp: &dto.RefundResponse{RefundID: "re_1", Status: "PARTIALLY_REFUNDED"}}

	rec, err := doRefund(t, svc, `{"amount":300}`)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp dto.RefundResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "re_1", resp.RefundID)
}

func TestRefundHandlerNoPayment(t *testing.T) {
	svc := &stubRefundService{err: service.ErrNoRefundablePayment}

	_, err := doRefund(t, svc, `{"amount":300}`)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestRefundHandlerExceedsCaptured(t *testing.T) {
	svc := &stubRefundService{err: service.ErrRefundExceedsCaptured}

	_, err := doRefund(t, svc, `{"amount":9999}`)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestRefundHandlerRejectsNegativeAmount(t *testing.T) {
	_, err := doRefund(t, &stubRefundService{}, `{"amount":-1}`)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}
