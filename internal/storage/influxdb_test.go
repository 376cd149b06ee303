package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/skalibog/bsig/internal/config"
	"github.com/skalibog/bsig/internal/frame"
	"github.com/skalibog/bsig/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type influxStub struct {
	mu     sync.Mutex
	status string
	bodies []string
}

func (s *influxStub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"influxdb","message":"ready for queries and writes","status":"` + s.status + `","checks":[],"version":"v2.7.1","commit":"x"}`))
	})
	mux.HandleFunc("/api/v2/write", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bsig", r.URL.Query().Get("org"))
		assert.Equal(t, "candles", r.URL.Query().Get("bucket"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		s.mu.Lock()
		s.bodies = append(s.bodies, string(body))
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func storageConfig(url string) config.StorageConfig {
	return config.StorageConfig{Enabled: true, URL: url, Token: "token", Organization: "bsig", Bucket: "candles"}
}

func TestInfluxDBStorageWrites(t *testing.T) {
	stub := &influxStub{status: "pass"}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	s, err := NewInfluxDBStorage(context.Background(), storageConfig(srv.URL))
	require.NoError(t, err)
	defer s.Close()

	tbl := sampleTable(t)
	require.NoError(t, s.SavePriceTable(context.Background(), tbl, "1m"))

	closes, err := tbl.Closes()
	require.NoError(t, err)
	signals := frame.NewSignalTable(closes)
	signals.Values[0][2] = models.SignalEntry
	require.NoError(t, s.SaveSignals(context.Background(), "sma_cross", signals))

	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.Len(t, stub.bodies, 2)
	assert.Contains(t, stub.bodies[0], "candles,interval=1m,pair=ETH/BTC ")
	assert.Equal(t, 6, strings.Count(stub.bodies[0], "candles,"))
	assert.Contains(t, stub.bodies[1], "signals,pair=ETH/BTC,strategy=sma_cross signal=1i")
}

func TestInfluxDBStorageUnhealthy(t *testing.T) {
	stub := &influxStub{status: "fail"}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	_, err := NewInfluxDBStorage(context.Background(), storageConfig(srv.URL))
	assert.Error(t, err)
}

func TestCandlePointsSkipMissingValues(t *testing.T) {
	tbl := sampleTable(t)
	points := candlePoints(tbl, "1m")
	require.Len(t, points, 6)

	// у LTC/BTC во второй строке нет объема
	ltc := points[4]
	assert.Equal(t, "candles", ltc.Name())
	names := make([]string, 0, len(ltc.FieldList()))
	for _, f := range ltc.FieldList() {
		names = append(names, f.Key)
	}
	assert.NotContains(t, names, "volume")
	assert.Contains(t, names, "close")
}

func TestSignalPointsOnlyNonZero(t *testing.T) {
	closes, err := sampleTable(t).Closes()
	require.NoError(t, err)
	signals := frame.NewSignalTable(closes)
	assert.Empty(t, signalPoints("rsi_bb", signals))

	signals.Values[1][0] = models.SignalExit
	points := signalPoints("rsi_bb", signals)
	require.Len(t, points, 1)
	assert.Equal(t, int64(-1), points[0].FieldList()[0].Value)
}
