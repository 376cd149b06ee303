package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/skalibog/bsig/internal/frame"
	"github.com/skalibog/bsig/pkg/models"
)

const timestampColumn = "timestamp"

// WriteFlatCSV атомарно пишет таблицу в CSV с плоскими именами колонок pair_field.
// Первая колонка timestamp в RFC3339, отсутствующие значения пустые.
func WriteFlatCSV(ctx context.Context, path string, table *frame.PriceTable) error {
	return writeAtomic(ctx, path, func(f *os.File) error {
		bw := bufio.NewWriter(f)
		if err := encodeFlatCSV(bw, table); err != nil {
			return fmt.Errorf("ошибка записи CSV %s: %w", path, err)
		}
		return bw.Flush()
	})
}

func encodeFlatCSV(w io.Writer, table *frame.PriceTable) error {
	cw := csv.NewWriter(w)
	keys := table.Keys()

	header := make([]string, 0, len(keys)+1)
	header = append(header, timestampColumn)
	for _, k := range keys {
		header = append(header, k.String())
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	cols := make([][]float64, len(keys))
	for j, k := range keys {
		cols[j], _ = table.Column(k)
	}
	record := make([]string, len(keys)+1)
	for i := 0; i < table.Len(); i++ {
		record[0] = table.Time(i).Format(time.RFC3339Nano)
		for j := range cols {
			v := cols[j][i]
			if math.IsNaN(v) {
				record[j+1] = ""
			} else {
				record[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadFlatCSV читает плоский CSV и восстанавливает ключи (pair, field)
// по последнему символу "_" в имени колонки.
func ReadFlatCSV(path string) (*frame.PriceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(bufio.NewReader(f))
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения заголовка CSV: %w", err)
	}
	if len(header) == 0 || header[0] != timestampColumn {
		return nil, &frame.SchemaError{Reason: "первая колонка CSV должна быть timestamp"}
	}

	keys := make([]frame.Key, len(header)-1)
	for j, name := range header[1:] {
		i := strings.LastIndex(name, "_")
		if i <= 0 || i == len(name)-1 {
			return nil, &frame.SchemaError{Reason: fmt.Sprintf("колонка %q не имеет вида pair_field", name)}
		}
		keys[j] = frame.Key{Pair: models.Pair(name[:i]), Field: models.Field(name[i+1:])}
	}

	stamps := make(map[int64]struct{})
	cells := make(map[frame.Key]map[int64]float64, len(keys))
	for _, k := range keys {
		if _, dup := cells[k]; dup {
			return nil, &frame.SchemaError{Reason: fmt.Sprintf("колонка %s встречается дважды", k)}
		}
		cells[k] = make(map[int64]float64)
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения CSV: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			return nil, fmt.Errorf("некорректное время %q: %w", rec[0], err)
		}
		t := ts.UnixNano()
		stamps[t] = struct{}{}
		for j, raw := range rec[1:] {
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("некорректное значение %q в колонке %s: %w", raw, keys[j], err)
			}
			cells[keys[j]][t] = v
		}
	}

	return assemble(stamps, cells)
}

// CSVCache кэш таблицы цен в плоском CSV
type CSVCache struct {
	path string
}

// NewCSVCache создает CSV-кэш по пути
func NewCSVCache(path string) *CSVCache {
	return &CSVCache{path: path}
}

func (c *CSVCache) Path() string { return c.path }

func (c *CSVCache) Exists() bool { return fileExists(c.path) }

func (c *CSVCache) Load(ctx context.Context) (*frame.PriceTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := ReadFlatCSV(c.path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения кэша %s: %w", c.path, err)
	}
	return t, nil
}

func (c *CSVCache) Save(ctx context.Context, table *frame.PriceTable) error {
	return WriteFlatCSV(ctx, c.path, table)
}
