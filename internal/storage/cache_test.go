package storage

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/skalibog/bsig/internal/frame"
	"github.com/skalibog/bsig/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

func sampleTable(t *testing.T) *frame.PriceTable {
	t.Helper()
	index := []time.Time{t0, t0.Add(time.Minute), t0.Add(2 * time.Minute)}
	cols := map[frame.Key][]float64{}
	for p, base := range map[models.Pair]float64{"ETH/BTC": 0.031, "LTC/BTC": 0.0012} {
		for n, f := range models.RequiredFields {
			col := make([]float64, len(index))
			for i := range col {
				col[i] = base*float64(n+1) + float64(i)*1e-4
			}
			cols[frame.Key{Pair: p, Field: f}] = col
		}
	}
	cols[frame.Key{Pair: "LTC/BTC", Field: models.FieldVolume}][1] = math.NaN()
	tbl, err := frame.NewPriceTable(index, cols)
	require.NoError(t, err)
	return tbl
}

func TestParquetCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "btc_1m.parquet")
	cache := NewParquetCache(path)
	assert.False(t, cache.Exists())

	tbl := sampleTable(t)
	require.NoError(t, cache.Save(context.Background(), tbl))
	assert.True(t, cache.Exists())

	loaded, err := cache.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, tbl.Equal(loaded))
	assert.Equal(t, tbl.Keys(), loaded.Keys())
}

func TestParquetCacheLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.parquet")
	require.NoError(t, os.WriteFile(path, []byte("not a parquet file"), 0o644))

	_, err := NewParquetCache(path).Load(context.Background())
	assert.Error(t, err)
}

func TestSaveCancelledLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.parquet")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewParquetCache(path).Save(ctx, sampleTable(t))
	assert.True(t, errors.Is(err, context.Canceled))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteFlatCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flat.csv")
	tbl := sampleTable(t)
	require.NoError(t, WriteFlatCSV(context.Background(), path, tbl))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t,
		"timestamp,ETH/BTC_open,ETH/BTC_high,ETH/BTC_low,ETH/BTC_close,ETH/BTC_volume,"+
			"LTC/BTC_open,LTC/BTC_high,LTC/BTC_low,LTC/BTC_close,LTC/BTC_volume",
		lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2025-02-01T00:00:00Z,"))
	assert.True(t, strings.HasSuffix(lines[2], ","), "NaN пишется пустой ячейкой")

	loaded, err := ReadFlatCSV(path)
	require.NoError(t, err)
	assert.True(t, tbl.Equal(loaded))
}

func TestReadFlatCSVRejectsBadHeader(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"no timestamp": "time,ETH/BTC_close\n",
		"no field":     "timestamp,ETHBTC\n",
		"duplicate":    "timestamp,ETH/BTC_close,ETH/BTC_close\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".csv")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			_, err := ReadFlatCSV(path)
			var schemaErr *frame.SchemaError
			assert.True(t, errors.As(err, &schemaErr))
		})
	}
}

func TestNewCache(t *testing.T) {
	c, err := NewCache("csv", "x.csv")
	require.NoError(t, err)
	assert.IsType(t, &CSVCache{}, c)

	c, err = NewCache("parquet", "x.parquet")
	require.NoError(t, err)
	assert.Equal(t, "x.parquet", c.Path())

	_, err = NewCache("feather", "x")
	assert.Error(t, err)
}

func TestCSVCacheRoundTrip(t *testing.T) {
	cache := NewCSVCache(filepath.Join(t.TempDir(), "cache.csv"))
	tbl := sampleTable(t)

	require.NoError(t, cache.Save(context.Background(), tbl))
	loaded, err := cache.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, tbl.Equal(loaded))
}
