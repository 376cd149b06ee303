package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Field поле OHLCV
type Field string

const (
	FieldOpen   Field = "open"
	FieldHigh   Field = "high"
	FieldLow    Field = "low"
	FieldClose  Field = "close"
	FieldVolume Field = "volume"
)

// RequiredFields поля, обязательные для каждой пары после валидации
var RequiredFields = []Field{FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume}

// Rank задает порядок полей: сначала OHLCV, затем остальные
func (f Field) Rank() int {
	for i, rf := range RequiredFields {
		if f == rf {
			return i
		}
	}
	return len(RequiredFields)
}

// Pair торговая пара вида ETH/BTC
type Pair string

// ParsePair разбирает строку вида "ETH/BTC"
func ParsePair(s string) (Pair, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	asset, quote, ok := strings.Cut(s, "/")
	if !ok || asset == "" || quote == "" || strings.Contains(quote, "/") {
		return "", fmt.Errorf("некорректная пара: %q", s)
	}
	return Pair(s), nil
}

// NewPair собирает пару из актива и валюты котировки
func NewPair(asset, quote string) Pair {
	return Pair(strings.ToUpper(asset) + "/" + strings.ToUpper(quote))
}

// Asset возвращает торгуемый актив
func (p Pair) Asset() string {
	asset, _, _ := strings.Cut(string(p), "/")
	return asset
}

// Quote возвращает валюту котировки
func (p Pair) Quote() string {
	_, quote, _ := strings.Cut(string(p), "/")
	return quote
}

// Symbol возвращает биржевой символ без разделителя (ETHBTC)
func (p Pair) Symbol() string {
	return strings.ReplaceAll(string(p), "/", "")
}

// Bar представляет свечу
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Value возвращает значение поля свечи
func (b Bar) Value(f Field) (float64, bool) {
	switch f {
	case FieldOpen:
		return b.Open, true
	case FieldHigh:
		return b.High, true
	case FieldLow:
		return b.Low, true
	case FieldClose:
		return b.Close, true
	case FieldVolume:
		return b.Volume, true
	}
	return 0, false
}

// Validate проверяет, что все значения конечны и неотрицательны
func (b Bar) Validate() error {
	if b.Time.IsZero() {
		return fmt.Errorf("пустое время свечи")
	}
	for _, f := range RequiredFields {
		v, _ := b.Value(f)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("поле %s не является конечным числом", f)
		}
		if v < 0 {
			return fmt.Errorf("отрицательное значение поля %s: %v", f, v)
		}
	}
	return nil
}

// Market описывает инструмент из каталога биржи
type Market struct {
	Pair   Pair
	Active bool
}

// Signal значение сигнала: -1 выход, 0 удержание, +1 вход
type Signal int8

const (
	SignalExit  Signal = -1
	SignalHold  Signal = 0
	SignalEntry Signal = 1
)

// SignalOf приводит произвольное число к домену {-1,0,1}; NaN дает 0
func SignalOf(v float64) Signal {
	switch {
	case v > 0:
		return SignalEntry
	case v < 0:
		return SignalExit
	default:
		return SignalHold
	}
}

// Metrics показатели эффективности по одной паре
type Metrics struct {
	Pair         Pair
	TotalReturn  float64 // %
	SharpeRatio  float64
	MaxDrawdown  float64 // %
	WinRate      float64 // %
	Expectancy   float64
	ExposureTime float64 // %
	Trades       int
}
