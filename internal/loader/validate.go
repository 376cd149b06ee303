package loader

import (
	"fmt"
	"math"

	"github.com/skalibog/bsig/internal/frame"
	"github.com/skalibog/bsig/pkg/logger"
	"github.com/skalibog/bsig/pkg/models"
	"go.uber.org/zap"
)

// Виды ошибок валидации
const (
	KindEmptyTable    = "empty_table"
	KindBadIndex      = "bad_index"
	KindResidualNulls = "residual_nulls"
	KindWrongSchema   = "wrong_schema"
	KindMissingField  = "missing_field"
)

// ValidationError таблица не прошла структурную проверку
type ValidationError struct {
	Kind   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ошибка валидации (%s): %s", e.Kind, e.Detail)
}

// Validate очищает таблицу и проверяет ее структуру:
// бесконечности заменяются на NaN, пропуски заполняются вперед и назад,
// строки с неположительными значениями удаляются, затем выполняются проверки.
// Входная таблица не изменяется.
func Validate(table *frame.PriceTable) (*frame.PriceTable, error) {
	if table == nil {
		return nil, &ValidationError{Kind: KindEmptyTable, Detail: "таблица отсутствует"}
	}

	filled := table.Apply(func(_ frame.Key, col []float64) {
		for i, v := range col {
			if math.IsInf(v, 0) {
				col[i] = math.NaN()
			}
		}
		fillForward(col)
		fillBackward(col)
	})

	keys := filled.Keys()
	cols := make([][]float64, len(keys))
	for j, k := range keys {
		cols[j], _ = filled.Column(k)
	}
	cleaned := filled.FilterRows(func(i int) bool {
		for _, col := range cols {
			if col[i] <= 0 {
				return false
			}
		}
		return true
	})

	if err := check(cleaned); err != nil {
		return nil, err
	}

	logger.Info("Данные прошли валидацию",
		zap.Int("rows", cleaned.Len()),
		zap.Int("dropped_rows", table.Len()-cleaned.Len()),
		zap.Int("pairs", len(cleaned.Pairs())))
	return cleaned, nil
}

func fillForward(col []float64) {
	last := math.NaN()
	for i, v := range col {
		if math.IsNaN(v) {
			col[i] = last
		} else {
			last = v
		}
	}
}

func fillBackward(col []float64) {
	next := math.NaN()
	for i := len(col) - 1; i >= 0; i-- {
		if math.IsNaN(col[i]) {
			col[i] = next
		} else {
			next = col[i]
		}
	}
}

func check(t *frame.PriceTable) error {
	if t.Len() == 0 || t.Width() == 0 {
		return &ValidationError{Kind: KindEmptyTable, Detail: fmt.Sprintf("%d строк, %d колонок", t.Len(), t.Width())}
	}

	index := t.Index()
	for i, ts := range index {
		if ts.IsZero() {
			return &ValidationError{Kind: KindBadIndex, Detail: fmt.Sprintf("пустое время в строке %d", i)}
		}
		if i > 0 && !ts.After(index[i-1]) {
			return &ValidationError{Kind: KindBadIndex, Detail: fmt.Sprintf("время не возрастает в строке %d (%s)", i, ts)}
		}
	}

	keys := t.Keys()
	for _, k := range keys {
		col, _ := t.Column(k)
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &ValidationError{Kind: KindResidualNulls, Detail: fmt.Sprintf("колонка %s, строка %d", k, i)}
			}
		}
	}

	// дополнительные поля допустимы, обязательны только OHLCV
	seen := make(map[frame.Key]struct{}, len(keys))
	for _, k := range keys {
		if k.Pair == "" || k.Field == "" {
			return &ValidationError{Kind: KindWrongSchema, Detail: fmt.Sprintf("неполный ключ колонки %q", k)}
		}
		seen[k] = struct{}{}
	}

	for _, p := range t.Pairs() {
		for _, f := range models.RequiredFields {
			if _, ok := seen[frame.Key{Pair: p, Field: f}]; !ok {
				return &ValidationError{Kind: KindMissingField, Detail: fmt.Sprintf("у пары %s нет поля %s", p, f)}
			}
		}
	}
	return nil
}
