// Package exchange загружает историю свечей и каталог пар с биржи.
package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/skalibog/bsig/internal/config"
	"github.com/skalibog/bsig/internal/metrics"
	"github.com/skalibog/bsig/pkg/logger"
	"github.com/skalibog/bsig/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MarketAPI минимальный набор запросов к бирже
type MarketAPI interface {
	// Klines возвращает до limit свечей, начиная с since (включительно), по возрастанию времени
	Klines(ctx context.Context, pair models.Pair, interval string, since time.Time, limit int) ([]models.Bar, error)
	// Markets возвращает каталог инструментов в порядке биржи
	Markets(ctx context.Context) ([]models.Market, error)
}

// Connector постраничная загрузка истории с ограничением частоты и повторами
type Connector struct {
	api     MarketAPI
	cfg     config.ExchangeConfig
	limiter *rate.Limiter
}

// NewConnector создает коннектор. Лимитер общий для всех горутин, использующих коннектор.
func NewConnector(api MarketAPI, cfg config.ExchangeConfig) *Connector {
	limit := rate.Inf
	if cfg.RateLimitPerMin > 0 {
		limit = rate.Limit(float64(cfg.RateLimitPerMin) / 60)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	return &Connector{
		api:     api,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// ListPairs возвращает первые limit активных пар с валютой котировки base в порядке каталога
func (c *Connector) ListPairs(ctx context.Context, base string, limit int) ([]models.Pair, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	markets, err := c.api.Markets(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения каталога пар: %w", err)
	}

	base = strings.ToUpper(strings.TrimSpace(base))
	var pairs []models.Pair
	for _, m := range markets {
		if len(pairs) >= limit {
			break
		}
		if m.Active && m.Pair.Quote() == base {
			pairs = append(pairs, m.Pair)
		}
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: котировка %s", ErrNoPairsAvailable, base)
	}

	logger.Info("Выбраны пары",
		zap.String("base", base),
		zap.Int("requested", limit),
		zap.Int("selected", len(pairs)))
	return pairs, nil
}

// FetchBars загружает свечи пары в полуинтервале [start, end).
// Результат не пуст, строго возрастает по времени и не содержит нечисловых значений,
// иначе возвращается *FetchError.
func (c *Connector) FetchBars(ctx context.Context, pair models.Pair, timeframe string, start, end time.Time) ([]models.Bar, error) {
	step, err := models.ParseTimeframe(timeframe)
	if err != nil {
		return nil, &FetchError{Pair: pair, Err: err}
	}

	var bars []models.Bar
	since := start
	for since.Before(end) {
		page, err := c.fetchPage(ctx, pair, timeframe, since)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		// повтор свечей на стыке страниц отбрасывается, порядок внутри страницы проверяется ниже
		prevPages := len(bars)
		for _, b := range page {
			if b.Time.Before(start) || !b.Time.Before(end) {
				continue
			}
			if prevPages > 0 && !b.Time.After(bars[prevPages-1].Time) {
				continue
			}
			bars = append(bars, b)
		}

		next := page[len(page)-1].Time.Add(step)
		if !next.After(since) {
			logger.Warn("Пагинация не продвигается, загрузка пары остановлена",
				zap.String("pair", string(pair)),
				zap.Time("since", since),
				zap.Time("next", next))
			break
		}
		since = next

		if since.Before(end) {
			if err := sleep(ctx, c.cfg.RequestDelay()); err != nil {
				return nil, err
			}
		}
	}

	if len(bars) == 0 {
		return nil, &FetchError{Pair: pair, Err: ErrEmptyHistory}
	}
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return nil, &FetchError{Pair: pair, Err: fmt.Errorf("свеча %s: %w", b.Time.Format(time.RFC3339), err)}
		}
		if i > 0 && !b.Time.After(bars[i-1].Time) {
			return nil, &FetchError{Pair: pair, Err: fmt.Errorf("нарушен порядок свечей на %s", b.Time.Format(time.RFC3339))}
		}
	}

	logger.Debug("Загружена история пары",
		zap.String("pair", string(pair)),
		zap.Int("bars", len(bars)),
		zap.Time("first", bars[0].Time),
		zap.Time("last", bars[len(bars)-1].Time))
	return bars, nil
}

// fetchPage одна страница с повтором временных ошибок
func (c *Connector) fetchPage(ctx context.Context, pair models.Pair, timeframe string, since time.Time) ([]models.Bar, error) {
	b := &backoff.Backoff{
		Min:    c.cfg.RetryDelay(),
		Max:    4 * c.cfg.RetryDelay(),
		Factor: 2,
	}

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		reqCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout := c.cfg.RequestTimeout(); timeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		page, err := c.api.Klines(reqCtx, pair, timeframe, since, c.cfg.PageSize)
		cancel()

		if err == nil {
			metrics.ExchangeRequests.WithLabelValues("ok").Inc()
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		transient := IsTransient(err)
		metrics.ExchangeRequests.WithLabelValues("error").Inc()
		if !transient || int(b.Attempt()) >= c.cfg.MaxRetries {
			return nil, &FetchError{Pair: pair, Transient: transient, Err: err}
		}

		delay := b.Duration()
		metrics.ExchangeRetries.Inc()
		logger.Warn("Временная ошибка биржи, повтор",
			zap.String("pair", string(pair)),
			zap.Time("since", since),
			zap.Float64("attempt", b.Attempt()),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
