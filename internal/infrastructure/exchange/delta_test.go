package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_breakout_bot/internal/domain"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *DeltaAdapter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	adapter := NewDeltaAdapter("test-key", "test-secret", srv.URL, "", zap.NewNop())
	return srv, adapter
}

func writeResult(w http.ResponseWriter, result interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"result":  result,
	})
}

func TestSendRequest_SignedHeaders(t *testing.T) {
	var gotKey, gotSig, gotTS string
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-key")
		gotSig = r.Header.Get("signature")
		gotTS = r.Header.Get("timestamp")
		writeResult(w, map[string]interface{}{"size": 0})
	})

	_, err := adapter.GetPosition(context.Background(), 27)
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	assert.NotEmpty(t, gotSig)
	assert.NotEmpty(t, gotTS)
}

func TestGetCandles_ChronologicalOrder(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/history/candles", r.URL.Path)
		assert.Equal(t, "4h", r.URL.Query().Get("resolution"))
		assert.Equal(t, "BTCUSD", r.URL.Query().Get("symbol"))
		// Newest first, as the API returns them.
		writeResult(w, []map[string]interface{}{
			{"time": 1700014400, "open": 64000, "high": 65000, "low": 63000, "close": 64500},
			{"time": 1700000000, "open": 62000, "high": 63000, "low": 61000, "close": 62500},
		})
	})

	candles, err := adapter.GetCandles(context.Background(), "BTCUSD", "4h", 3)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.True(t, candles[0].Time.Before(candles[1].Time))
	assert.Equal(t, 63000.0, candles[0].High)
	assert.Equal(t, 65000.0, candles[1].High)
}

func TestGetCurrentPrice_RESTFallback(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/tickers/BTCUSD", r.URL.Path)
		writeResult(w, map[string]interface{}{"mark_price": "64123.5"})
	})

	price, err := adapter.GetCurrentPrice(context.Background(), "BTCUSD")
	require.NoError(t, err)
	assert.Equal(t, 64123.5, price)
}

func TestGetCurrentPrice_PrefersFreshWSPrice(t *testing.T) {
	called := false
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		writeResult(w, map[string]interface{}{"mark_price": "1"})
	})

	adapter.mu.Lock()
	adapter.lastPrice = 64500
	adapter.priceAt = time.Now()
	adapter.mu.Unlock()

	price, err := adapter.GetCurrentPrice(context.Background(), "BTCUSD")
	require.NoError(t, err)
	assert.Equal(t, 64500.0, price)
	assert.False(t, called)
}

func TestPlaceStopOrder_Payload(t *testing.T) {
	var payload map[string]interface{}
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		writeResult(w, map[string]interface{}{"id": 12345})
	})

	id, err := adapter.PlaceStopOrder(context.Background(), 27, "BTCUSD", domain.SideShort, 1, 59000)
	require.NoError(t, err)
	assert.Equal(t, "12345", id)

	assert.Equal(t, "sell", payload["side"])
	assert.Equal(t, float64(27), payload["product_id"])
	assert.Equal(t, float64(1), payload["size"])
	assert.Equal(t, "stop_loss_order", payload["stop_order_type"])
	assert.Equal(t, "59000", payload["stop_price"])
}

func TestPlaceLimitOrder_Payload(t *testing.T) {
	var payload map[string]interface{}
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		writeResult(w, map[string]interface{}{"id": 777})
	})

	id, err := adapter.PlaceLimitOrder(context.Background(), 27, "BTCUSD", domain.SideLong, 2, 67000.5)
	require.NoError(t, err)
	assert.Equal(t, "777", id)

	assert.Equal(t, "buy", payload["side"])
	assert.Equal(t, "limit_order", payload["order_type"])
	assert.Equal(t, "67000.5", payload["limit_price"])
}

func TestOrderRejection_MappedToSentinel(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   map[string]string{"code": "insufficient_margin"},
		})
	})

	_, err := adapter.PlaceStopOrder(context.Background(), 27, "BTCUSD", domain.SideLong, 1, 65000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOrderRejected))
}

func TestGetPosition_NilWhenFlat(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]interface{}{"size": 0, "entry_price": "0"})
	})

	pos, err := adapter.GetPosition(context.Background(), 27)
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestGetPosition_ShortFromSignedSize(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "27", r.URL.Query().Get("product_id"))
		writeResult(w, map[string]interface{}{"size": -2, "entry_price": "60000.5"})
	})

	pos, err := adapter.GetPosition(context.Background(), 27)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, domain.SideShort, pos.Side)
	assert.Equal(t, 2.0, pos.Size)
	assert.Equal(t, 60000.5, pos.EntryPrice)
}

func TestGetOpenOrders_StateMapping(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, []map[string]interface{}{
			{"id": 1, "side": "buy", "size": 1, "stop_price": "65000", "state": "open"},
			{"id": 2, "side": "sell", "size": 1, "limit_price": "67000", "state": "open"},
		})
	})

	orders, err := adapter.GetOpenOrders(context.Background(), 27)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.True(t, orders[0].IsStop())
	assert.Equal(t, domain.SideLong, orders[0].Side)
	assert.False(t, orders[1].IsStop())
	assert.Equal(t, 67000.0, orders[1].Price)
}

func TestGetOrder_FilledState(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/orders/42", r.URL.Path)
		writeResult(w, map[string]interface{}{
			"id": 42, "side": "buy", "size": 1,
			"state": "closed", "average_fill_price": "65002.5",
		})
	})

	order, err := adapter.GetOrder(context.Background(), 27, "42")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, order.Status)
	assert.Equal(t, 65002.5, order.FillPrice)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "65000", formatPrice(65000))
	assert.Equal(t, "65000.5", formatPrice(65000.5))
	assert.Equal(t, "0.0001", formatPrice(0.0001))
}

func TestResolutionDuration(t *testing.T) {
	assert.Equal(t, time.Minute, resolutionDuration("1m"))
	assert.Equal(t, 4*time.Hour, resolutionDuration("4h"))
	assert.Equal(t, 24*time.Hour, resolutionDuration("1d"))
}
