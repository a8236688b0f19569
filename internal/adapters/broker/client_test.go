package broker_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/alphaquant/internal/adapters/broker"
	"github.com/alejandrodnm/alphaquant/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *broker.Client {
	return broker.NewClient(broker.Options{
		BaseURL:   srv.URL,
		Account:   "DU123",
		Token:     "secret",
		RetryWait: time.Millisecond,
	})
}

func TestBars_Success(t *testing.T) {
	data, err := os.ReadFile("../../../testdata/fixtures/broker_bars.json")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/marketdata/bars", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1 day", r.URL.Query().Get("bar"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	defer srv.Close()

	bars, err := newTestClient(srv).Bars(context.Background(), "AAPL", "1 day", 3)
	require.NoError(t, err)
	require.Len(t, bars, 3)

	assert.InDelta(t, 238.03, bars[0].Close, 0.0001)
	assert.InDelta(t, 235.74, bars[2].Close, 0.0001)
	assert.Equal(t, 5, bars[2].Time.Day())
}

func TestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/marketdata/quote", r.URL.Path)
		w.Write([]byte(`{"symbol":"SPX","last":5612.4,"open":5600.5,"bid":5612,"ask":5613}`))
	}))
	defer srv.Close()

	q, err := newTestClient(srv).Quote(context.Background(), "SPX")
	require.NoError(t, err)
	assert.Equal(t, "SPX", q.Symbol)
	assert.InDelta(t, 5600.5, q.Open, 0.0001)
	assert.InDelta(t, 5612.4, q.Last, 0.0001)
}

func TestOptionStrikes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"expirations":["20250401","20250402"],"strikes":[5400,5405,5410]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv)

	strikes, err := client.OptionStrikes(context.Background(), "SPX", "20250401")
	require.NoError(t, err)
	assert.Equal(t, []float64{5400, 5405, 5410}, strikes)

	strikes, err = client.OptionStrikes(context.Background(), "SPX", "20250403")
	require.NoError(t, err)
	assert.Nil(t, strikes, "expiry not listed")
}

func TestPlaceOrder(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/accounts/DU123/orders", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"order_id":"42","status":"Submitted","submitted_at":"2025-04-01T14:30:00Z"}`))
	}))
	defer srv.Close()

	ack, err := newTestClient(srv).PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol: "AAPL", Action: domain.ActionBuy, Quantity: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "42", ack.OrderID)
	assert.Equal(t, "Submitted", ack.Status)
	assert.Equal(t, 14, ack.SubmittedAt.Hour())

	assert.Equal(t, "AAPL", got["symbol"])
	assert.Equal(t, "BUY", got["side"])
	assert.Equal(t, "MKT", got["order_type"])
	assert.Equal(t, "STK", got["sec_type"])
	assert.InDelta(t, 10.0, got["quantity"], 0.0001)
	assert.NotContains(t, got, "limit_price")
}

func TestPlaceSpread(t *testing.T) {
	var got struct {
		Side       string  `json:"side"`
		LimitPrice float64 `json:"limit_price"`
		Expiry     string  `json:"expiry"`
		Legs       []struct {
			Right  string  `json:"right"`
			Strike float64 `json:"strike"`
			Side   string  `json:"side"`
		} `json:"legs"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts/DU123/spreads", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"order_id":"7","status":"PreSubmitted"}`))
	}))
	defer srv.Close()

	ack, err := newTestClient(srv).PlaceSpread(context.Background(), domain.SpreadOrder{
		Symbol: "SPX", Exchange: "CBOE", Expiry: "20250401",
		SellStrike: 5400, BuyStrike: 5395, Quantity: 1, Credit: 1.25,
	})
	require.NoError(t, err)
	assert.Equal(t, "7", ack.OrderID)
	assert.False(t, ack.SubmittedAt.IsZero())

	assert.Equal(t, "SELL", got.Side)
	assert.InDelta(t, 1.25, got.LimitPrice, 0.0001)
	assert.Equal(t, "20250401", got.Expiry)
	require.Len(t, got.Legs, 2)
	assert.Equal(t, "P", got.Legs[0].Right)
	assert.InDelta(t, 5400, got.Legs[0].Strike, 0.0001)
	assert.Equal(t, "SELL", got.Legs[0].Side)
	assert.InDelta(t, 5395, got.Legs[1].Strike, 0.0001)
	assert.Equal(t, "BUY", got.Legs[1].Side)
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"symbol":"AAPL","last":200}`))
	}))
	defer srv.Close()

	q, err := newTestClient(srv).Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 200.0, q.Last, 0.0001)
	assert.Equal(t, int32(2), calls.Load())
}

func TestServerErrorExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Quote(context.Background(), "AAPL")
	assert.Error(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("unknown symbol"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Bars(context.Background(), "XXXX", "1 day", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client error 400: unknown symbol")
	assert.Equal(t, int32(1), calls.Load())
}
