// Package frame содержит табличные структуры: мультиактивную таблицу цен с
// двухуровневым ключом колонок (пара, поле), ее проекции по полю и таблицу сигналов.
package frame

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/skalibog/bsig/pkg/models"
)

// Key составной ключ колонки (пара, поле)
type Key struct {
	Pair  models.Pair
	Field models.Field
}

// Less полный порядок ключей: по паре, затем по рангу поля, затем по имени поля
func (k Key) Less(o Key) bool {
	if k.Pair != o.Pair {
		return k.Pair < o.Pair
	}
	if rk, ro := k.Field.Rank(), o.Field.Rank(); rk != ro {
		return rk < ro
	}
	return k.Field < o.Field
}

// String плоское имя колонки вида ETH/BTC_close
func (k Key) String() string {
	return string(k.Pair) + "_" + string(k.Field)
}

// SchemaError таблица не имеет ожидаемой структуры колонок
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "неверная схема таблицы: " + e.Reason
}

// PriceTable неизменяемая таблица (время, пара, поле) -> значение.
// Колонки всегда упорядочены по Key.Less.
type PriceTable struct {
	index []time.Time
	keys  []Key
	cols  [][]float64
}

// NewPriceTable создает таблицу; длина каждой колонки должна совпадать с длиной индекса
func NewPriceTable(index []time.Time, cols map[Key][]float64) (*PriceTable, error) {
	keys := make([]Key, 0, len(cols))
	for k, col := range cols {
		if k.Pair == "" || k.Field == "" {
			return nil, &SchemaError{Reason: fmt.Sprintf("пустой компонент ключа %q", k.String())}
		}
		if len(col) != len(index) {
			return nil, fmt.Errorf("колонка %s: %d значений при %d строках", k, len(col), len(index))
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	t := &PriceTable{
		index: append([]time.Time(nil), index...),
		keys:  keys,
		cols:  make([][]float64, len(keys)),
	}
	for j, k := range keys {
		t.cols[j] = append([]float64(nil), cols[k]...)
	}
	return t, nil
}

// FromBars строит таблицу одной пары из свечей
func FromBars(pair models.Pair, bars []models.Bar) *PriceTable {
	index := make([]time.Time, len(bars))
	cols := make(map[Key][]float64, len(models.RequiredFields))
	for _, f := range models.RequiredFields {
		cols[Key{Pair: pair, Field: f}] = make([]float64, len(bars))
	}
	for i, b := range bars {
		index[i] = b.Time.UTC()
		for _, f := range models.RequiredFields {
			v, _ := b.Value(f)
			cols[Key{Pair: pair, Field: f}][i] = v
		}
	}
	t, _ := NewPriceTable(index, cols)
	return t
}

// Combine объединяет таблицы внешним соединением по времени.
// Отсутствующие у пары моменты заполняются NaN.
func Combine(tables ...*PriceTable) (*PriceTable, error) {
	seen := make(map[time.Time]struct{})
	var index []time.Time
	for _, t := range tables {
		for _, ts := range t.index {
			if _, ok := seen[ts]; !ok {
				seen[ts] = struct{}{}
				index = append(index, ts)
			}
		}
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })
	pos := make(map[time.Time]int, len(index))
	for i, ts := range index {
		pos[ts] = i
	}

	cols := make(map[Key][]float64)
	for _, t := range tables {
		for j, k := range t.keys {
			if _, dup := cols[k]; dup {
				return nil, &SchemaError{Reason: fmt.Sprintf("колонка %s встречается дважды", k)}
			}
			col := make([]float64, len(index))
			for i := range col {
				col[i] = math.NaN()
			}
			for i, ts := range t.index {
				col[pos[ts]] = t.cols[j][i]
			}
			cols[k] = col
		}
	}
	return NewPriceTable(index, cols)
}

// Len количество строк
func (t *PriceTable) Len() int { return len(t.index) }

// Width количество колонок
func (t *PriceTable) Width() int { return len(t.keys) }

// Index копия индекса времени
func (t *PriceTable) Index() []time.Time { return append([]time.Time(nil), t.index...) }

// Time время строки i
func (t *PriceTable) Time(i int) time.Time { return t.index[i] }

// Keys копия ключей колонок в каноническом порядке
func (t *PriceTable) Keys() []Key { return append([]Key(nil), t.keys...) }

// Column возвращает колонку по ключу. Срез принадлежит таблице и не должен изменяться.
func (t *PriceTable) Column(k Key) ([]float64, bool) {
	j, ok := t.find(k)
	if !ok {
		return nil, false
	}
	return t.cols[j], true
}

// At значение ячейки
func (t *PriceTable) At(i int, k Key) float64 {
	col, ok := t.Column(k)
	if !ok {
		return math.NaN()
	}
	return col[i]
}

// Pairs пары в порядке колонок
func (t *PriceTable) Pairs() []models.Pair {
	var pairs []models.Pair
	for _, k := range t.keys {
		if len(pairs) == 0 || pairs[len(pairs)-1] != k.Pair {
			pairs = append(pairs, k.Pair)
		}
	}
	return pairs
}

// Fields поля, имеющиеся у пары
func (t *PriceTable) Fields(pair models.Pair) []models.Field {
	var fields []models.Field
	for _, k := range t.keys {
		if k.Pair == pair {
			fields = append(fields, k.Field)
		}
	}
	return fields
}

// Field проекция таблицы на одно поле: по колонке на пару
func (t *PriceTable) Field(f models.Field) (*PairTable, error) {
	if t == nil || len(t.keys) == 0 {
		return nil, &SchemaError{Reason: "таблица не содержит колонок (пара, поле)"}
	}
	pairs := t.Pairs()
	out := &PairTable{
		Index:  t.Index(),
		Pairs:  pairs,
		Values: make([][]float64, len(pairs)),
	}
	for j, p := range pairs {
		col, ok := t.Column(Key{Pair: p, Field: f})
		if !ok {
			return nil, &SchemaError{Reason: fmt.Sprintf("у пары %s нет поля %s", p, f)}
		}
		out.Values[j] = append([]float64(nil), col...)
	}
	return out, nil
}

// Closes проекция цен закрытия
func (t *PriceTable) Closes() (*PairTable, error) {
	return t.Field(models.FieldClose)
}

// Clone глубокая копия
func (t *PriceTable) Clone() *PriceTable {
	c := &PriceTable{
		index: append([]time.Time(nil), t.index...),
		keys:  append([]Key(nil), t.keys...),
		cols:  make([][]float64, len(t.cols)),
	}
	for j := range t.cols {
		c.cols[j] = append([]float64(nil), t.cols[j]...)
	}
	return c
}

// Apply возвращает копию таблицы, в которой fn может изменять колонки на месте
func (t *PriceTable) Apply(fn func(k Key, col []float64)) *PriceTable {
	c := t.Clone()
	for j, k := range c.keys {
		fn(k, c.cols[j])
	}
	return c
}

// FilterRows возвращает копию, содержащую только строки, для которых keep вернул true
func (t *PriceTable) FilterRows(keep func(i int) bool) *PriceTable {
	var rows []int
	for i := range t.index {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	c := &PriceTable{
		index: make([]time.Time, len(rows)),
		keys:  append([]Key(nil), t.keys...),
		cols:  make([][]float64, len(t.cols)),
	}
	for n, i := range rows {
		c.index[n] = t.index[i]
	}
	for j := range t.cols {
		col := make([]float64, len(rows))
		for n, i := range rows {
			col[n] = t.cols[j][i]
		}
		c.cols[j] = col
	}
	return c
}

// Equal точное сравнение: индекс, ключи и значения (NaN равен NaN)
func (t *PriceTable) Equal(o *PriceTable) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.index) != len(o.index) || len(t.keys) != len(o.keys) {
		return false
	}
	for i := range t.index {
		if !t.index[i].Equal(o.index[i]) {
			return false
		}
	}
	for j := range t.keys {
		if t.keys[j] != o.keys[j] {
			return false
		}
		for i, v := range t.cols[j] {
			w := o.cols[j][i]
			if v != w && !(math.IsNaN(v) && math.IsNaN(w)) {
				return false
			}
		}
	}
	return true
}

func (t *PriceTable) find(k Key) (int, bool) {
	j := sort.Search(len(t.keys), func(j int) bool { return !t.keys[j].Less(k) })
	if j < len(t.keys) && t.keys[j] == k {
		return j, true
	}
	return 0, false
}

// PairTable проекция таблицы цен на одно поле: колонка на пару
type PairTable struct {
	Index  []time.Time
	Pairs  []models.Pair
	Values [][]float64
}

// Column колонка пары
func (p *PairTable) Column(pair models.Pair) ([]float64, bool) {
	for j, pp := range p.Pairs {
		if pp == pair {
			return p.Values[j], true
		}
	}
	return nil, false
}

// SignalTable таблица сигналов с тем же индексом и набором пар, что у проекции close
type SignalTable struct {
	Index  []time.Time
	Pairs  []models.Pair
	Values [][]models.Signal
}

// NewSignalTable создает таблицу сигналов, заполненную нулями, по форме проекции
func NewSignalTable(p *PairTable) *SignalTable {
	s := &SignalTable{
		Index:  append([]time.Time(nil), p.Index...),
		Pairs:  append([]models.Pair(nil), p.Pairs...),
		Values: make([][]models.Signal, len(p.Pairs)),
	}
	for j := range s.Values {
		s.Values[j] = make([]models.Signal, len(p.Index))
	}
	return s
}

// Column сигналы пары
func (s *SignalTable) Column(pair models.Pair) ([]models.Signal, bool) {
	for j, pp := range s.Pairs {
		if pp == pair {
			return s.Values[j], true
		}
	}
	return nil, false
}

// Matches проверяет совпадение индекса, набора и порядка пар с проекцией
func (s *SignalTable) Matches(p *PairTable) bool {
	if len(s.Index) != len(p.Index) || len(s.Pairs) != len(p.Pairs) || len(s.Values) != len(s.Pairs) {
		return false
	}
	for i := range s.Index {
		if !s.Index[i].Equal(p.Index[i]) {
			return false
		}
	}
	for j := range s.Pairs {
		if s.Pairs[j] != p.Pairs[j] || len(s.Values[j]) != len(s.Index) {
			return false
		}
	}
	return true
}
