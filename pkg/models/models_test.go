package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePair(t *testing.T) {
	p, err := ParsePair(" eth/btc ")
	require.NoError(t, err)
	assert.Equal(t, Pair("ETH/BTC"), p)
	assert.Equal(t, "ETH", p.Asset())
	assert.Equal(t, "BTC", p.Quote())
	assert.Equal(t, "ETHBTC", p.Symbol())

	for _, bad := range []string{"", "ETHBTC", "/BTC", "ETH/", "A/B/C"} {
		_, err := ParsePair(bad)
		assert.Error(t, err, bad)
	}
}

func TestFieldRank(t *testing.T) {
	assert.Equal(t, 0, FieldOpen.Rank())
	assert.Equal(t, 3, FieldClose.Rank())
	assert.Equal(t, 5, Field("trades").Rank())
}

func TestBarValidate(t *testing.T) {
	ts := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	ok := Bar{Time: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 0}
	assert.NoError(t, ok.Validate())

	nan := ok
	nan.Close = math.NaN()
	assert.Error(t, nan.Validate())

	neg := ok
	neg.Low = -1
	assert.Error(t, neg.Validate())

	assert.Error(t, Bar{Open: 1}.Validate())
}

func TestSignalOf(t *testing.T) {
	assert.Equal(t, SignalEntry, SignalOf(3))
	assert.Equal(t, SignalExit, SignalOf(-0.2))
	assert.Equal(t, SignalHold, SignalOf(0))
	assert.Equal(t, SignalHold, SignalOf(math.NaN()))
}

func TestParseTimeframe(t *testing.T) {
	d, err := ParseTimeframe("1m")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	_, err = ParseTimeframe("7m")
	assert.Error(t, err)

	tfs := SupportedTimeframes()
	assert.Equal(t, "1m", tfs[0])
	assert.Equal(t, "1w", tfs[len(tfs)-1])
}
