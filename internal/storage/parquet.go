package storage

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/skalibog/bsig/internal/frame"
	"github.com/skalibog/bsig/pkg/logger"
	"github.com/skalibog/bsig/pkg/models"
	"go.uber.org/zap"
)

const cacheLayout = "bsig/long/v1"

// cacheRow одна ячейка таблицы в длинном формате. Parquet не поддерживает
// двухуровневые имена колонок, поэтому ключ (pair, field) хранится в данных.
type cacheRow struct {
	Time  int64   `parquet:"ts,delta"`
	Pair  string  `parquet:"pair,dict"`
	Field string  `parquet:"field,dict"`
	Value float64 `parquet:"value"`
}

// ParquetCache кэш таблицы цен в файле Parquet (snappy)
type ParquetCache struct {
	path string
}

// NewParquetCache создает кэш по пути
func NewParquetCache(path string) *ParquetCache {
	return &ParquetCache{path: path}
}

// Path путь к файлу кэша
func (c *ParquetCache) Path() string { return c.path }

// Exists проверяет наличие файла кэша
func (c *ParquetCache) Exists() bool { return fileExists(c.path) }

// Save атомарно записывает таблицу
func (c *ParquetCache) Save(ctx context.Context, table *frame.PriceTable) error {
	rows := make([]cacheRow, 0, table.Len()*table.Width())
	for _, k := range table.Keys() {
		col, _ := table.Column(k)
		for i, v := range col {
			rows = append(rows, cacheRow{
				Time:  table.Time(i).UnixNano(),
				Pair:  string(k.Pair),
				Field: string(k.Field),
				Value: v,
			})
		}
	}

	err := writeAtomic(ctx, c.path, func(f *os.File) error {
		w := parquet.NewGenericWriter[cacheRow](f,
			parquet.Compression(&parquet.Snappy),
			parquet.KeyValueMetadata("layout", cacheLayout),
		)
		if _, err := w.Write(rows); err != nil {
			return fmt.Errorf("ошибка записи parquet: %w", err)
		}
		return w.Close()
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения кэша %s: %w", c.path, err)
	}

	logger.Info("Кэш сохранен",
		zap.String("path", c.path),
		zap.Int("rows", table.Len()),
		zap.Int("columns", table.Width()))
	return nil
}

// Load читает таблицу и восстанавливает составные ключи колонок
func (c *ParquetCache) Load(ctx context.Context) (*frame.PriceTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[cacheRow](c.path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения кэша %s: %w", c.path, err)
	}

	cells := make(map[frame.Key]map[int64]float64)
	stamps := make(map[int64]struct{})
	for _, r := range rows {
		k := frame.Key{Pair: models.Pair(r.Pair), Field: models.Field(r.Field)}
		if cells[k] == nil {
			cells[k] = make(map[int64]float64)
		}
		cells[k][r.Time] = r.Value
		stamps[r.Time] = struct{}{}
	}

	return assemble(stamps, cells)
}

// assemble собирает таблицу из разреженных ячеек; отсутствующие ячейки равны NaN
func assemble(stamps map[int64]struct{}, cells map[frame.Key]map[int64]float64) (*frame.PriceTable, error) {
	ts := make([]int64, 0, len(stamps))
	for t := range stamps {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })

	index := make([]time.Time, len(ts))
	for i, t := range ts {
		index[i] = time.Unix(0, t).UTC()
	}

	cols := make(map[frame.Key][]float64, len(cells))
	for k, byTime := range cells {
		col := make([]float64, len(ts))
		for i, t := range ts {
			v, ok := byTime[t]
			if !ok {
				v = math.NaN()
			}
			col[i] = v
		}
		cols[k] = col
	}
	return frame.NewPriceTable(index, cols)
}
