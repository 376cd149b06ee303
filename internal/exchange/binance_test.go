package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skalibog/bsig/internal/config"
	"github.com/skalibog/bsig/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const klinesBody = `[
 [1738368000000,"0.03120000","0.03130000","0.03110000","0.03125000","152.30000000",1738368059999,"4.75",42,"80.1","2.5","0"],
 [1738368060000,"0.03125000","0.03140000","0.03120000","0.03138000","98.10000000",1738368119999,"3.07",17,"40.2","1.2","0"]
]`

const exchangeInfoBody = `{
 "timezone":"UTC","serverTime":1738368000000,"rateLimits":[],"exchangeFilters":[],
 "symbols":[
  {"symbol":"ETHBTC","status":"TRADING","baseAsset":"ETH","quoteAsset":"BTC"},
  {"symbol":"LUNABTC","status":"BREAK","baseAsset":"LUNA","quoteAsset":"BTC"},
  {"symbol":"ETHUSDT","status":"TRADING","baseAsset":"ETH","quoteAsset":"USDT"}
 ]
}`

func newBinanceServer(t *testing.T, prefix string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(prefix+"/klines", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("symbol") == "FOOBTC" {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":-1003,"msg":"Too many requests."}`))
			return
		}
		assert.Equal(t, "ETHBTC", q.Get("symbol"))
		assert.Equal(t, "1m", q.Get("interval"))
		assert.Equal(t, "1738368000000", q.Get("startTime"))
		assert.Equal(t, "1000", q.Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(klinesBody))
	})
	mux.HandleFunc(prefix+"/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(exchangeInfoBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBinanceAPISpot(t *testing.T) {
	srv := newBinanceServer(t, "/api/v3")
	api, err := NewBinanceAPI(config.ExchangeConfig{Market: "spot", BaseURL: srv.URL})
	require.NoError(t, err)

	bars, err := api.Klines(context.Background(), "ETH/BTC", "1m", t0, 1000)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, t0, bars[0].Time)
	assert.InDelta(t, 0.0312, bars[0].Open, 1e-12)
	assert.InDelta(t, 0.03138, bars[1].Close, 1e-12)
	assert.InDelta(t, 98.1, bars[1].Volume, 1e-9)

	markets, err := api.Markets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Market{
		{Pair: "ETH/BTC", Active: true},
		{Pair: "LUNA/BTC", Active: false},
		{Pair: "ETH/USDT", Active: true},
	}, markets)
}

func TestBinanceAPIFutures(t *testing.T) {
	srv := newBinanceServer(t, "/fapi/v1")
	api, err := NewBinanceAPI(config.ExchangeConfig{Market: "futures", BaseURL: srv.URL})
	require.NoError(t, err)

	bars, err := api.Klines(context.Background(), "ETH/BTC", "1m", t0, 1000)
	require.NoError(t, err)
	assert.Len(t, bars, 2)

	markets, err := api.Markets(context.Background())
	require.NoError(t, err)
	assert.Len(t, markets, 3)
}

func TestBinanceAPIErrorIsTransient(t *testing.T) {
	srv := newBinanceServer(t, "/api/v3")
	api, err := NewBinanceAPI(config.ExchangeConfig{Market: "spot", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = api.Klines(context.Background(), "FOO/BTC", "1m", t0, 1000)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestConnectorOverBinanceAPI(t *testing.T) {
	srv := newBinanceServer(t, "/api/v3")
	cfg := config.ExchangeConfig{Name: "binance", Market: "spot", BaseURL: srv.URL, PageSize: 1000}
	api, err := New(cfg)
	require.NoError(t, err)
	c := NewConnector(api, cfg)

	pairs, err := c.ListPairs(context.Background(), "BTC", 10)
	require.NoError(t, err)
	assert.Equal(t, []models.Pair{"ETH/BTC"}, pairs)
}

func TestNewRejectsUnknownExchange(t *testing.T) {
	_, err := New(config.ExchangeConfig{Name: "kraken"})
	assert.ErrorContains(t, err, "binance")

	_, err = NewBinanceAPI(config.ExchangeConfig{Market: "options"})
	assert.Error(t, err)
}

func TestParseBarRejectsGarbage(t *testing.T) {
	_, err := parseBar(0, "1", "x", "1", "1", "1")
	assert.Error(t, err)
}
