package square

import (
	"errors"
	"net/http"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

func TestReadSettingsReportsEveryProblem(t *testing.T) {
	_, err := readSettings(config.SquareConfig{Env: "staging"})
	require.Error(t, err)
	require.ErrorContains(t, err, `"staging"`)
	require.ErrorContains(t, err, "access token")
	require.ErrorContains(t, err, "location id")

	s, err := readSettings(config.SquareConfig{AccessToken: " tok ", LocationID: "LOC1"})
	require.NoError(t, err)
	require.Equal(t, settings{host: hosts["sandbox"], token: "tok", location: "LOC1"}, s)

	s, err = readSettings(config.SquareConfig{Env: "PRODUCTION", AccessToken: "tok", LocationID: "LOC1"})
	require.NoError(t, err)
	require.Equal(t, hosts["production"], s.host)
}

func TestMaskedHidesSensitiveFields(t *testing.T) {
	out := masked(map[string]any{"payment_token": "abc", "buyer_email": "a@b.co", "amount_minor": 100})
	require.Equal(t, "[REDACTED]", out["payment_token"])
	require.Equal(t, "[REDACTED]", out["buyer_email"])
	require.Equal(t, 100, out["amount_minor"])
}

func TestCodeForStatus(t *testing.T) {
	cases := map[int]pkgerrors.Code{
		http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
		http.StatusNotFound:            pkgerrors.CodeNotFound,
		http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
		http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
		http.StatusPaymentRequired:     pkgerrors.CodeValidation,
		http.StatusBadGateway:          pkgerrors.CodeDependency,
	}
	for status, want := range cases {
		require.Equal(t, want, codeForStatus(status), "status %d", status)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want pkgerrors.Code
	}{
		{"auth category", sqcore.NewAPIError(http.StatusBadRequest, errors.New(`{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`)), pkgerrors.CodeUnauthorized},
		{"key reused", sqcore.NewAPIError(http.StatusBadRequest, errors.New(`{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`)), pkgerrors.CodeIdempotency},
		{"status only", sqcore.NewAPIError(http.StatusServiceUnavailable, errors.New("upstream down")), pkgerrors.CodeDependency},
		{"transport", errors.New("dial tcp: timeout"), pkgerrors.CodeDependency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify(tc.err, "create order")
			require.True(t, pkgerrors.IsCode(err, tc.want), "got %v", err)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestAPIErrorsDecodesBody(t *testing.T) {
	apiErr := sqcore.NewAPIError(http.StatusBadRequest, errors.New(`{"errors":[{"category":"API_ERROR","code":"BAD_REQUEST","detail":"oops"}]}`))
	got := apiErrors(apiErr)
	require.Len(t, got, 1)
	require.Equal(t, sq.ErrorCodeBadRequest, got[0].GetCode())

	require.Nil(t, apiErrors(sqcore.NewAPIError(http.StatusBadRequest, errors.New("not json"))))
}

func TestCreateOrderWithoutSDK(t *testing.T) {
	var c *Client
	_, err := c.CreateOrder(t.Context(), OrderCreateParams{AmountMinor: 100, IdempotencyKey: "order-1-1"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestOrderCreateParamsBuildsLineItems(t *testing.T) {
	params := OrderCreateParams{
		LocationID:  "LOC1",
		ReferenceID: "ORD-20260101-ABC123",
		Currency:    "usd",
		AmountMinor: 2500,
		LineItems: []OrderLineParams{
			{Name: "Mug", Quantity: 2, UnitPriceMinor: 1000},
			{Name: "Shipping", Quantity: 1, UnitPriceMinor: 500},
		},
	}
	req := params.toSquareRequest("order-1-1")
	require.Equal(t, "order-1-1", *req.IdempotencyKey)
	require.Equal(t, "LOC1", req.Order.LocationID)
	require.Equal(t, "ORD-20260101-ABC123", *req.Order.ReferenceID)
	require.Len(t, req.Order.LineItems, 2)
	first := req.Order.LineItems[0]
	require.Equal(t, "2", first.Quantity)
	require.Equal(t, int64(1000), *first.BasePriceMoney.Amount)
	require.Equal(t, sq.Currency("USD"), *first.BasePriceMoney.Currency)
}

func TestOrderCreateParamsFallsBackToSingleLine(t *testing.T) {
	req := OrderCreateParams{ReferenceID: "ORD-1", AmountMinor: 999}.toSquareRequest("k")
	require.Len(t, req.Order.LineItems, 1)
	require.Equal(t, int64(999), *req.Order.LineItems[0].BasePriceMoney.Amount)
}
