// Package runner прогоняет включенные стратегии на загруженной таблице цен.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/skalibog/bsig/internal/backtest"
	"github.com/skalibog/bsig/internal/config"
	"github.com/skalibog/bsig/internal/frame"
	"github.com/skalibog/bsig/internal/metrics"
	"github.com/skalibog/bsig/internal/storage"
	"github.com/skalibog/bsig/internal/strategy"
	"github.com/skalibog/bsig/pkg/logger"
	"github.com/skalibog/bsig/pkg/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Source источник таблицы цен
type Source interface {
	Load(ctx context.Context) (*frame.PriceTable, error)
}

// Archive архив цен и сигналов (InfluxDB)
type Archive interface {
	SavePriceTable(ctx context.Context, table *frame.PriceTable, interval string) error
	SaveSignals(ctx context.Context, strategy string, signals *frame.SignalTable) error
	Close() error
}

// Journal журнал результатов прогонов (SQLite)
type Journal interface {
	SaveRun(ctx context.Context, rec storage.RunRecord) error
	Close() error
}

// BuildFunc создает стратегию по имени
type BuildFunc func(name string, prices *frame.PriceTable, cfg config.StrategiesConfig) (strategy.Strategy, error)

// Report итог прогона одной стратегии
type Report struct {
	Strategy string
	Metrics  []models.Metrics
	Err      error
	Duration time.Duration
}

// Failed стратегия завершилась ошибкой
func (r Report) Failed() bool { return r.Err != nil }

// Runner оркестратор: загрузка данных, прогон стратегий, сохранение результатов
type Runner struct {
	source  Source
	cfg     config.Config
	opts    backtest.Options
	build   BuildFunc
	archive Archive
	journal Journal
	runID   string
}

// Option настройка оркестратора
type Option func(*Runner)

// WithArchive включает архивирование цен и сигналов
func WithArchive(a Archive) Option {
	return func(r *Runner) { r.archive = a }
}

// WithJournal включает запись результатов в журнал
func WithJournal(j Journal) Option {
	return func(r *Runner) { r.journal = j }
}

// WithBuilder подменяет фабрику стратегий
func WithBuilder(b BuildFunc) Option {
	return func(r *Runner) { r.build = b }
}

// New создает оркестратор
func New(source Source, cfg config.Config, opts ...Option) (*Runner, error) {
	btOpts, err := backtest.OptionsFrom(cfg.Backtest, cfg.Data.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("ошибка параметров симуляции: %w", err)
	}
	r := &Runner{
		source: source,
		cfg:    cfg,
		opts:   btOpts,
		build:  strategy.Build,
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunID идентификатор текущего запуска
func (r *Runner) RunID() string { return r.runID }

// Run загружает данные и по очереди прогоняет стратегии. Ошибка или паника одной
// стратегии попадает в ее отчет, остальные продолжают работу. Ошибка возвращается
// только при невозможности загрузить данные или при отмене ctx.
func (r *Runner) Run(ctx context.Context) ([]Report, error) {
	prices, err := r.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки данных: %w", err)
	}
	closes, err := prices.Closes()
	if err != nil {
		return nil, err
	}
	logger.Info("Данные загружены",
		zap.String("run_id", r.runID),
		zap.Int("pairs", len(closes.Pairs)),
		zap.Int("bars", prices.Len()))

	if r.archive != nil {
		if err := r.archive.SavePriceTable(ctx, prices, r.cfg.Data.Timeframe); err != nil {
			logger.Warn("Не удалось архивировать цены", zap.Error(err))
		}
	}

	reports := make([]Report, 0, len(r.cfg.Strategies.Enabled))
	for _, name := range r.cfg.Strategies.Enabled {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		rep := r.runStrategy(ctx, name, prices, closes)
		status := "ok"
		if rep.Failed() {
			status = "error"
			logger.Error("Стратегия завершилась с ошибкой",
				zap.String("strategy", name),
				zap.Error(rep.Err))
		} else {
			logger.Info("Стратегия выполнена",
				zap.String("strategy", name),
				zap.Duration("duration", rep.Duration))
		}
		metrics.StrategyRuns.WithLabelValues(name, status).Inc()
		metrics.StrategyDuration.WithLabelValues(name).Observe(rep.Duration.Seconds())

		if r.journal != nil {
			rec := storage.RunRecord{RunID: r.runID, Strategy: name, Metrics: rep.Metrics, Err: rep.Err, At: time.Now().UTC()}
			if err := r.journal.SaveRun(ctx, rec); err != nil {
				logger.Warn("Не удалось записать результат в журнал", zap.String("strategy", name), zap.Error(err))
			}
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

// runStrategy изолирует одну стратегию: паника превращается в ошибку отчета
func (r *Runner) runStrategy(ctx context.Context, name string, prices *frame.PriceTable, closes *frame.PairTable) (rep Report) {
	rep.Strategy = name
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			rep.Metrics = nil
			rep.Err = fmt.Errorf("паника в стратегии %s: %v", name, p)
		}
		rep.Duration = time.Since(start)
	}()

	s, err := r.build(name, prices, r.cfg.Strategies)
	if err != nil {
		rep.Err = err
		return rep
	}
	signals, err := s.GenerateSignals()
	if err != nil {
		rep.Err = fmt.Errorf("ошибка генерации сигналов: %w", err)
		return rep
	}

	if r.archive != nil {
		if err := r.archive.SaveSignals(ctx, name, signals); err != nil {
			logger.Warn("Не удалось архивировать сигналы", zap.String("strategy", name), zap.Error(err))
		}
	}

	portfolio, err := backtest.Simulate(closes, signals, r.opts)
	if err != nil {
		rep.Err = fmt.Errorf("ошибка симуляции: %w", err)
		return rep
	}
	rep.Metrics = portfolio.Metrics()

	path := filepath.Join(r.cfg.Results.Dir, name+"_metrics.csv")
	if err := storage.WriteMetricsCSV(ctx, path, rep.Metrics); err != nil {
		rep.Err = fmt.Errorf("ошибка сохранения метрик: %w", err)
		return rep
	}
	logger.Debug("Метрики сохранены", zap.String("path", path))
	return rep
}

// Close закрывает подключенные хранилища
func (r *Runner) Close() error {
	var err error
	if r.archive != nil {
		err = multierr.Append(err, r.archive.Close())
	}
	if r.journal != nil {
		err = multierr.Append(err, r.journal.Close())
	}
	return err
}

// EnsureDirs создает каталоги данных и результатов
func EnsureDirs(cfg config.Config) error {
	for _, dir := range []string{cfg.Data.Dir, cfg.Results.Dir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ошибка создания каталога %s: %w", dir, err)
		}
	}
	return nil
}
