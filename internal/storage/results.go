package storage

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"strconv"

	"github.com/skalibog/bsig/pkg/models"
)

var metricsHeader = []string{
	"pair", "total_return", "sharpe_ratio", "max_drawdown",
	"win_rate", "expectancy", "exposure_time", "trades",
}

// WriteMetricsCSV атомарно пишет метрики стратегии, строка на пару.
// Неопределенные метрики остаются пустыми.
func WriteMetricsCSV(ctx context.Context, path string, metrics []models.Metrics) error {
	return writeAtomic(ctx, path, func(f *os.File) error {
		cw := csv.NewWriter(f)
		if err := cw.Write(metricsHeader); err != nil {
			return err
		}
		for _, m := range metrics {
			record := []string{
				string(m.Pair),
				formatMetric(m.TotalReturn),
				formatMetric(m.SharpeRatio),
				formatMetric(m.MaxDrawdown),
				formatMetric(m.WinRate),
				formatMetric(m.Expectancy),
				formatMetric(m.ExposureTime),
				strconv.Itoa(m.Trades),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func formatMetric(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}
