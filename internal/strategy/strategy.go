// Package strategy генерирует торговые сигналы по мультиактивной таблице цен.
package strategy

import (
	"fmt"
	"time"

	"github.com/skalibog/bsig/internal/frame"
	"github.com/skalibog/bsig/pkg/models"
)

// Strategy стратегия строит по одному сигналу на бар для каждой пары
type Strategy interface {
	Name() string
	GenerateSignals() (*frame.SignalTable, error)
}

// RawSignals сырые сигналы по парам до нормализации. Набор пар и индекс
// могут не совпадать с таблицей цен.
type RawSignals struct {
	Index   []time.Time
	Columns map[models.Pair][]float64
}

// Base общая часть стратегий: таблица цен и нормализация сигналов
type Base struct {
	prices *frame.PriceTable
}

// NewBase создает основу стратегии
func NewBase(prices *frame.PriceTable) Base {
	return Base{prices: prices}
}

// Prices исходная таблица цен
func (b Base) Prices() *frame.PriceTable { return b.prices }

// ClosePrices проекция цен закрытия
func (b Base) ClosePrices() (*frame.PairTable, error) {
	if b.prices == nil {
		return nil, &frame.SchemaError{Reason: "таблица цен отсутствует"}
	}
	return b.prices.Closes()
}

// NormalizeSignals приводит сырые сигналы к индексу и набору пар проекции close.
// Ячейки без соответствия равны 0, значения приводятся к {-1, 0, 1}.
func (b Base) NormalizeSignals(raw RawSignals) (*frame.SignalTable, error) {
	closes, err := b.ClosePrices()
	if err != nil {
		return nil, err
	}
	out := frame.NewSignalTable(closes)

	rows := make(map[time.Time]int, len(closes.Index))
	for i, ts := range closes.Index {
		rows[ts] = i
	}

	for j, pair := range closes.Pairs {
		col, ok := raw.Columns[pair]
		if !ok {
			continue
		}
		if len(col) != len(raw.Index) {
			return nil, fmt.Errorf("сигналы %s: %d значений при %d строках", pair, len(col), len(raw.Index))
		}
		for r, ts := range raw.Index {
			if i, ok := rows[ts]; ok {
				out.Values[j][i] = models.SignalOf(col[r])
			}
		}
	}
	return out, nil
}

// series колонка поля пары
func (b Base) series(pair models.Pair, field models.Field) ([]float64, error) {
	col, ok := b.prices.Column(frame.Key{Pair: pair, Field: field})
	if !ok {
		return nil, &frame.SchemaError{Reason: fmt.Sprintf("у пары %s нет поля %s", pair, field)}
	}
	return col, nil
}

// perPair считает сырые сигналы независимо по каждой паре и нормализует их
func (b Base) perPair(fn func(pair models.Pair, closes []float64) ([]float64, error)) (*frame.SignalTable, error) {
	closes, err := b.ClosePrices()
	if err != nil {
		return nil, err
	}
	raw := RawSignals{
		Index:   closes.Index,
		Columns: make(map[models.Pair][]float64, len(closes.Pairs)),
	}
	for j, pair := range closes.Pairs {
		col, err := fn(pair, closes.Values[j])
		if err != nil {
			return nil, err
		}
		raw.Columns[pair] = col
	}
	return b.NormalizeSignals(raw)
}

// decide выход имеет приоритет над входом
func decide(entry, exit bool) float64 {
	switch {
	case exit:
		return -1
	case entry:
		return 1
	default:
		return 0
	}
}
