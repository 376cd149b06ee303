// Package loader собирает проверенную мультиактивную таблицу цен: из кэша,
// а при его отсутствии загружая историю пар с биржи.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skalibog/bsig/internal/config"
	"github.com/skalibog/bsig/internal/frame"
	"github.com/skalibog/bsig/internal/metrics"
	"github.com/skalibog/bsig/internal/storage"
	"github.com/skalibog/bsig/pkg/logger"
	"github.com/skalibog/bsig/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoValidData не удалось загрузить ни одной пары
var ErrNoValidData = errors.New("нет валидных данных ни по одной паре")

// Fetcher источник пар и свечей
type Fetcher interface {
	ListPairs(ctx context.Context, base string, limit int) ([]models.Pair, error)
	FetchBars(ctx context.Context, pair models.Pair, timeframe string, start, end time.Time) ([]models.Bar, error)
}

// Loader загрузчик данных
type Loader struct {
	fetcher     Fetcher
	cache       storage.Cache
	cfg         config.DataConfig
	concurrency int
}

// New создает загрузчик. concurrency ограничивает число одновременно загружаемых пар.
func New(fetcher Fetcher, cache storage.Cache, cfg config.DataConfig, concurrency int) *Loader {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Loader{
		fetcher:     fetcher,
		cache:       cache,
		cfg:         cfg,
		concurrency: concurrency,
	}
}

// Load возвращает проверенную таблицу цен. Кэш, не прошедший валидацию, считается
// фатальной ошибкой и не перезагружается с биржи.
func (l *Loader) Load(ctx context.Context) (*frame.PriceTable, error) {
	if l.cache.Exists() {
		logger.Info("Загрузка данных из кэша", zap.String("path", l.cache.Path()))
		table, err := l.cache.Load(ctx)
		if err != nil {
			metrics.CacheLoads.WithLabelValues("error").Inc()
			return nil, err
		}
		validated, err := Validate(table)
		if err != nil {
			metrics.CacheLoads.WithLabelValues("invalid").Inc()
			return nil, fmt.Errorf("кэш %s поврежден: %w", l.cache.Path(), err)
		}
		metrics.CacheLoads.WithLabelValues("hit").Inc()
		return validated, nil
	}
	metrics.CacheLoads.WithLabelValues("miss").Inc()

	table, err := l.fetch(ctx)
	if err != nil {
		return nil, err
	}
	validated, err := Validate(table)
	if err != nil {
		return nil, err
	}

	if err := l.cache.Save(ctx, validated); err != nil {
		return nil, err
	}
	if l.cfg.ExportCSV && l.cfg.Format != config.FormatCSV {
		if err := storage.WriteFlatCSV(ctx, l.cfg.CSVPath(), validated); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("Не удалось сохранить CSV", zap.String("path", l.cfg.CSVPath()), zap.Error(err))
		}
	}
	return validated, nil
}

// fetch загружает пары параллельно; ошибка одной пары не прерывает загрузку остальных
func (l *Loader) fetch(ctx context.Context) (*frame.PriceTable, error) {
	start, end, err := l.cfg.Range()
	if err != nil {
		return nil, err
	}
	pairs, err := l.fetcher.ListPairs(ctx, l.cfg.BaseCurrency, l.cfg.NumPairs)
	if err != nil {
		return nil, err
	}

	logger.Info("Загрузка истории с биржи",
		zap.Int("pairs", len(pairs)),
		zap.String("timeframe", l.cfg.Timeframe),
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("concurrency", l.concurrency))

	tables := make([]*frame.PriceTable, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			bars, err := l.fetcher.FetchBars(gctx, pair, l.cfg.Timeframe, start, end)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				metrics.PairsFetched.WithLabelValues("skipped").Inc()
				logger.Warn("Пара пропущена из-за ошибки загрузки",
					zap.String("pair", string(pair)),
					zap.Error(err))
				return nil
			}
			metrics.PairsFetched.WithLabelValues("ok").Inc()
			tables[i] = frame.FromBars(pair, bars)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var ok []*frame.PriceTable
	for _, t := range tables {
		if t != nil {
			ok = append(ok, t)
		}
	}
	if len(ok) == 0 {
		return nil, ErrNoValidData
	}
	logger.Info("История загружена",
		zap.Int("pairs_ok", len(ok)),
		zap.Int("pairs_skipped", len(pairs)-len(ok)))

	return frame.Combine(ok...)
}
