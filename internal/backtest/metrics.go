package backtest

import (
	"math"
	"time"

	"github.com/skalibog/bsig/pkg/models"
)

const year = 365 * 24 * time.Hour

// Metrics показатели по каждой паре. Неопределенные значения равны NaN:
// Sharpe при нулевой волатильности, WinRate и Expectancy без закрытых сделок.
func (p *Portfolio) Metrics() []models.Metrics {
	out := make([]models.Metrics, len(p.Pairs))
	for j, pair := range p.Pairs {
		equity := p.Equity[j]
		trades := p.Trades[j]

		m := models.Metrics{
			Pair:         pair,
			TotalReturn:  math.NaN(),
			SharpeRatio:  sharpe(equity, p.opts.Timeframe),
			MaxDrawdown:  maxDrawdown(equity),
			WinRate:      math.NaN(),
			Expectancy:   math.NaN(),
			ExposureTime: math.NaN(),
			Trades:       len(trades),
		}
		if n := len(equity); n > 0 {
			m.TotalReturn = (equity[n-1]/p.opts.InitCash - 1) * 100
			m.ExposureTime = float64(p.exposed[j]) / float64(n) * 100
		}
		if len(trades) > 0 {
			var wins int
			var pnl float64
			for _, t := range trades {
				if t.PnL > 0 {
					wins++
				}
				pnl += t.PnL
			}
			m.WinRate = float64(wins) / float64(len(trades)) * 100
			m.Expectancy = pnl / float64(len(trades))
		}
		out[j] = m
	}
	return out
}

// sharpe годовой коэффициент Шарпа по побарным доходностям (нулевая безрисковая ставка)
func sharpe(equity []float64, timeframe time.Duration) float64 {
	if len(equity) < 3 || timeframe <= 0 {
		return math.NaN()
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}
	if len(returns) < 2 {
		return math.NaN()
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(returns)-1))
	if std == 0 || math.IsNaN(std) {
		return math.NaN()
	}
	return mean / std * math.Sqrt(float64(year)/float64(timeframe))
}

// maxDrawdown наибольшая просадка от пика в процентах (положительное число)
func maxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return math.NaN()
	}
	var peak, dd float64
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd = math.Max(dd, (peak-v)/peak)
		}
	}
	return dd * 100
}
