package runner

import (
	"context"
	"fmt"

	"github.com/skalibog/bsig/internal/config"
	"github.com/skalibog/bsig/internal/storage"
	"go.uber.org/multierr"
)

// Openers фабрики хранилищ
type Openers struct {
	Archive func(ctx context.Context, cfg config.StorageConfig) (Archive, error)
	Journal func(path string) (Journal, error)
}

// DefaultOpeners InfluxDB для архива и SQLite для журнала
var DefaultOpeners = Openers{
	Archive: func(ctx context.Context, cfg config.StorageConfig) (Archive, error) {
		s, err := storage.NewInfluxDBStorage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	},
	Journal: func(path string) (Journal, error) {
		l, err := storage.OpenLedger(path)
		if err != nil {
			return nil, err
		}
		return l, nil
	},
}

// OpenSinks открывает хранилища, включенные в конфигурации, и возвращает опции
// оркестратора и функцию их закрытия. При ошибке уже открытые хранилища закрываются.
func OpenSinks(ctx context.Context, cfg config.Config, op Openers) ([]Option, func() error, error) {
	var (
		opts    []Option
		closers []func() error
	)
	closeAll := func() error {
		var err error
		for _, c := range closers {
			err = multierr.Append(err, c())
		}
		return err
	}

	if cfg.Storage.Enabled {
		archive, err := op.Archive(ctx, cfg.Storage)
		if err != nil {
			return nil, nil, fmt.Errorf("ошибка инициализации хранилища: %w", err)
		}
		opts = append(opts, WithArchive(archive))
		closers = append(closers, archive.Close)
	}
	if cfg.Results.SQLitePath != "" {
		journal, err := op.Journal(cfg.Results.SQLitePath)
		if err != nil {
			err = fmt.Errorf("ошибка открытия журнала результатов: %w", err)
			return nil, nil, multierr.Append(err, closeAll())
		}
		opts = append(opts, WithJournal(journal))
		closers = append(closers, journal.Close)
	}
	return opts, closeAll, nil
}
