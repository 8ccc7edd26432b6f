package discount_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rawises/storefront-api/internal/discount"
)

type memStore struct {
	cfg discount.Config
}

func (m *memStore) Get(context.Context) (discount.Config, error) { return m.cfg, nil }

func (m *memStore) Save(_ context.Context, c discount.Config) (discount.Config, error) {
	m.cfg = c.Normalize()
	return m.cfg, nil
}

func TestHandlerUpdateClampsAndReturnsConfig(t *testing.T) {
	store := &memStore{cfg: discount.DefaultConfig()}
	h := &discount.Handler{Store: store}

	body := `{"memberDiscountEnabled":true,"memberDiscountRate":65,"minimumOrderAmount":100,"description":"VIP"}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/discounts/member", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.Update(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Data discount.Config `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Data.Rate.Equal(decimal.NewFromInt(50)))
	require.True(t, resp.Data.MinimumOrderAmount.Equal(decimal.NewFromInt(100)))
	require.Equal(t, "VIP", store.cfg.Description)
}

func TestHandlerUpdateRequiresEnabledFlag(t *testing.T) {
	h := &discount.Handler{Store: &memStore{}}
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/discounts/member", strings.NewReader(`{"memberDiscountRate":10}`))
	rr := httptest.NewRecorder()
	h.Update(rr, req)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "VALIDATION_ERROR")
}

func TestHandlerUpdateRejectsNegativeMinimum(t *testing.T) {
	h := &discount.Handler{Store: &memStore{}}
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/discounts/member", strings.NewReader(`{"memberDiscountEnabled":true,"minimumOrderAmount":-1}`))
	rr := httptest.NewRecorder()
	h.Update(rr, req)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestHandlerGet(t *testing.T) {
	h := &discount.Handler{Store: &memStore{cfg: discount.DefaultConfig()}}
	rr := httptest.NewRecorder()
	h.Get(rr, httptest.NewRequest(http.MethodGet, "/api/v1/discounts/member", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "memberDiscountEnabled")
}
