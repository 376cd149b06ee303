package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

var timeframes = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// ParseTimeframe конвертирует строковый интервал в duration
func ParseTimeframe(interval string) (time.Duration, error) {
	d, ok := timeframes[strings.TrimSpace(interval)]
	if !ok {
		return 0, fmt.Errorf("неподдерживаемый интервал: %q", interval)
	}
	return d, nil
}

// SupportedTimeframes возвращает все поддерживаемые интервалы (по возрастанию длительности)
func SupportedTimeframes() []string {
	keys := make([]string, 0, len(timeframes))
	for k := range timeframes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return timeframes[keys[i]] < timeframes[keys[j]] })
	return keys
}
