package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/skalibog/bsig/internal/config"
	"github.com/skalibog/bsig/internal/frame"
	"github.com/skalibog/bsig/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(cols map[models.Pair][]float64, sigs map[models.Pair][]models.Signal, pairs ...models.Pair) (*frame.PairTable, *frame.SignalTable) {
	n := len(cols[pairs[0]])
	index := make([]time.Time, n)
	for i := range index {
		index[i] = time.Date(2025, 2, 1, 0, i, 0, 0, time.UTC)
	}
	closes := &frame.PairTable{Index: index, Pairs: pairs}
	for _, p := range pairs {
		closes.Values = append(closes.Values, cols[p])
	}
	signals := frame.NewSignalTable(closes)
	for j, p := range pairs {
		if s, ok := sigs[p]; ok {
			copy(signals.Values[j], s)
		}
	}
	return closes, signals
}

func noFees() Options {
	return Options{InitCash: 100, Timeframe: time.Minute}
}

func TestSimulateRoundTrip(t *testing.T) {
	closes, signals := fixture(
		map[models.Pair][]float64{
			"ETH/BTC": {10, 11, 12, 13, 12, 11},
			"LTC/BTC": {10, 11, 12, 13, 12, 11},
		},
		map[models.Pair][]models.Signal{
			"ETH/BTC": {0, 1, 0, 0, -1, 0},
		},
		"ETH/BTC", "LTC/BTC")

	p, err := Simulate(closes, signals, noFees())
	require.NoError(t, err)

	eth := p.Equity[0]
	assert.InDelta(t, 100, eth[0], 1e-9)
	assert.InDelta(t, 100, eth[1], 1e-9)
	assert.InDelta(t, 1300.0/11, eth[3], 1e-9)
	assert.InDelta(t, 1200.0/11, eth[5], 1e-9)

	require.Len(t, p.Trades[0], 1)
	trade := p.Trades[0][0]
	assert.Equal(t, models.Pair("ETH/BTC"), trade.Pair)
	assert.Equal(t, 11.0, trade.EntryPrice)
	assert.Equal(t, 12.0, trade.ExitPrice)
	assert.InDelta(t, 100.0/11, trade.PnL, 1e-9)

	m := p.Metrics()
	require.Len(t, m, 2)
	assert.InDelta(t, 100.0/11, m[0].TotalReturn, 1e-9)
	assert.InDelta(t, 100.0/13, m[0].MaxDrawdown, 1e-9)
	assert.Equal(t, 100.0, m[0].WinRate)
	assert.InDelta(t, 100.0/11, m[0].Expectancy, 1e-9)
	assert.InDelta(t, 50, m[0].ExposureTime, 1e-9)
	assert.Equal(t, 1, m[0].Trades)

	// пара без сигналов не торгует
	assert.Equal(t, 0.0, m[1].TotalReturn)
	assert.Equal(t, 0.0, m[1].MaxDrawdown)
	assert.Equal(t, 0.0, m[1].ExposureTime)
	assert.True(t, math.IsNaN(m[1].WinRate))
	assert.True(t, math.IsNaN(m[1].Expectancy))
	assert.True(t, math.IsNaN(m[1].SharpeRatio))
}

func TestSimulateFeesAndSlippage(t *testing.T) {
	closes, signals := fixture(
		map[models.Pair][]float64{"ETH/BTC": {10, 11, 12, 13}},
		map[models.Pair][]models.Signal{"ETH/BTC": {0, 1, -1, 0}},
		"ETH/BTC")

	opts := Options{Commission: 0.001, Slippage: 0.0005, InitCash: 100, Timeframe: time.Minute}
	p, err := Simulate(closes, signals, opts)
	require.NoError(t, err)

	qty := 100 / (11 * 1.0005 * 1.001)
	want := qty * 12 * 0.9995 * 0.999
	assert.InDelta(t, want, p.Equity[0][3], 1e-9)

	trade := p.Trades[0][0]
	assert.InDelta(t, 11*1.0005, trade.EntryPrice, 1e-12)
	assert.InDelta(t, 12*0.9995, trade.ExitPrice, 1e-12)
	assert.InDelta(t, want-100, trade.PnL, 1e-9)
	assert.Less(t, p.Metrics()[0].TotalReturn, 100.0/11)
}

func TestSimulateIgnoresRepeatedSignals(t *testing.T) {
	closes, signals := fixture(
		map[models.Pair][]float64{"ETH/BTC": {10, 10, 20, 20, 10, 10}},
		map[models.Pair][]models.Signal{"ETH/BTC": {-1, 1, 1, -1, -1, 1}},
		"ETH/BTC")

	p, err := Simulate(closes, signals, noFees())
	require.NoError(t, err)

	// вход на 10, второй вход игнорируется, выход на 20, повторный выход игнорируется,
	// открытая в конце позиция переоценивается по последней цене
	require.Len(t, p.Trades[0], 1)
	assert.InDelta(t, 100, p.Trades[0][0].PnL, 1e-9)
	assert.InDelta(t, 200, p.Equity[0][5], 1e-9)
	assert.InDelta(t, 100.0*3/6, p.Metrics()[0].ExposureTime, 1e-9)
}

func TestSimulateSkipsNaNPrice(t *testing.T) {
	closes, signals := fixture(
		map[models.Pair][]float64{"ETH/BTC": {10, math.NaN(), 20}},
		map[models.Pair][]models.Signal{"ETH/BTC": {1, -1, -1}},
		"ETH/BTC")

	p, err := Simulate(closes, signals, noFees())
	require.NoError(t, err)
	assert.InDelta(t, 100, p.Equity[0][1], 1e-9)
	require.Len(t, p.Trades[0], 1)
	assert.Equal(t, 20.0, p.Trades[0][0].ExitPrice)
}

func TestSharpe(t *testing.T) {
	closes, signals := fixture(
		map[models.Pair][]float64{"ETH/BTC": {10, 11, 12, 13, 14, 15}},
		map[models.Pair][]models.Signal{"ETH/BTC": {1}},
		"ETH/BTC")

	p, err := Simulate(closes, signals, noFees())
	require.NoError(t, err)
	s := p.Metrics()[0].SharpeRatio
	assert.Greater(t, s, 0.0)

	p.opts.Timeframe = time.Hour
	// более длинный бар дает меньший множитель годовой нормировки
	assert.InEpsilon(t, s/math.Sqrt(60), p.Metrics()[0].SharpeRatio, 1e-9)
}

func TestSimulateRejectsMismatch(t *testing.T) {
	closes, signals := fixture(
		map[models.Pair][]float64{"ETH/BTC": {1, 2}, "LTC/BTC": {1, 2}},
		nil, "ETH/BTC", "LTC/BTC")
	signals.Pairs[0], signals.Pairs[1] = signals.Pairs[1], signals.Pairs[0]

	_, err := Simulate(closes, signals, noFees())
	assert.Error(t, err)

	_, err = Simulate(closes, nil, noFees())
	assert.Error(t, err)

	closes, signals = fixture(map[models.Pair][]float64{"ETH/BTC": {1}}, nil, "ETH/BTC")
	_, err = Simulate(closes, signals, Options{})
	assert.Error(t, err)
}

func TestOptionsFrom(t *testing.T) {
	opts, err := OptionsFrom(config.BacktestConfig{Commission: 0.001, Slippage: 0.0005, InitCash: 100}, "5m")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, opts.Timeframe)
	assert.Equal(t, 0.001, opts.Commission)

	_, err = OptionsFrom(config.BacktestConfig{}, "7m")
	assert.Error(t, err)
}
