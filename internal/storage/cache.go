// Package storage сохраняет таблицы цен и результаты прогонов: файловый кэш
// (Parquet или плоский CSV), архив InfluxDB и журнал прогонов в SQLite.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skalibog/bsig/internal/frame"
)

// Cache файловый кэш объединенной таблицы цен
type Cache interface {
	Path() string
	Exists() bool
	Load(ctx context.Context) (*frame.PriceTable, error)
	Save(ctx context.Context, table *frame.PriceTable) error
}

// NewCache создает кэш указанного формата (parquet или csv)
func NewCache(format, path string) (Cache, error) {
	switch format {
	case "", "parquet":
		return NewParquetCache(path), nil
	case "csv":
		return NewCSVCache(path), nil
	default:
		return nil, fmt.Errorf("неизвестный формат кэша %q", format)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// writeAtomic пишет файл во временный файл рядом с целевым и переименовывает его.
// Если ctx отменен до переименования, целевой файл не создается.
func writeAtomic(ctx context.Context, path string, write func(f *os.File) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ошибка создания каталога %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("ошибка переименования %s: %w", path, err)
	}
	return nil
}
