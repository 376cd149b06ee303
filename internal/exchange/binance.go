package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/skalibog/bsig/internal/config"
	"github.com/skalibog/bsig/pkg/models"
)

const (
	spotTestnetURL    = "https://testnet.binance.vision"
	futuresTestnetURL = "https://testnet.binancefuture.com"
)

// BinanceAPI клиент для получения свечей и каталога Binance (спот или USDⓈ-M фьючерсы)
type BinanceAPI struct {
	market  string
	spot    *binance.Client
	futures *futures.Client
}

// NewBinanceAPI создает клиент Binance
func NewBinanceAPI(cfg config.ExchangeConfig) (*BinanceAPI, error) {
	api := &BinanceAPI{market: cfg.Market}

	switch cfg.Market {
	case "", "spot":
		api.market = "spot"
		api.spot = binance.NewClient(cfg.APIKey, cfg.APISecret)
		if cfg.Testnet {
			api.spot.BaseURL = spotTestnetURL
		}
		if cfg.BaseURL != "" {
			api.spot.BaseURL = cfg.BaseURL
		}
	case "futures":
		api.futures = futures.NewClient(cfg.APIKey, cfg.APISecret)
		if cfg.Testnet {
			api.futures.BaseURL = futuresTestnetURL
		}
		if cfg.BaseURL != "" {
			api.futures.BaseURL = cfg.BaseURL
		}
	default:
		return nil, fmt.Errorf("неизвестный рынок Binance: %q", cfg.Market)
	}

	return api, nil
}

// Klines получает страницу исторических свечей
func (c *BinanceAPI) Klines(ctx context.Context, pair models.Pair, interval string, since time.Time, limit int) ([]models.Bar, error) {
	if c.futures != nil {
		klines, err := c.futures.NewKlinesService().
			Symbol(pair.Symbol()).
			Interval(interval).
			StartTime(since.UnixMilli()).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("ошибка получения свечей: %w", err)
		}
		bars := make([]models.Bar, len(klines))
		for i, k := range klines {
			b, err := parseBar(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
			if err != nil {
				return nil, err
			}
			bars[i] = b
		}
		return bars, nil
	}

	klines, err := c.spot.NewKlinesService().
		Symbol(pair.Symbol()).
		Interval(interval).
		StartTime(since.UnixMilli()).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}
	bars := make([]models.Bar, len(klines))
	for i, k := range klines {
		b, err := parseBar(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, err
		}
		bars[i] = b
	}
	return bars, nil
}

// Markets получает каталог инструментов
func (c *BinanceAPI) Markets(ctx context.Context) ([]models.Market, error) {
	if c.futures != nil {
		info, err := c.futures.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("ошибка получения каталога: %w", err)
		}
		markets := make([]models.Market, 0, len(info.Symbols))
		for _, s := range info.Symbols {
			markets = append(markets, models.Market{
				Pair:   models.NewPair(s.BaseAsset, s.QuoteAsset),
				Active: s.Status == "TRADING",
			})
		}
		return markets, nil
	}

	info, err := c.spot.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения каталога: %w", err)
	}
	markets := make([]models.Market, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		markets = append(markets, models.Market{
			Pair:   models.NewPair(s.BaseAsset, s.QuoteAsset),
			Active: s.Status == "TRADING",
		})
	}
	return markets, nil
}

// parseBar разбирает строковые значения свечи Binance
func parseBar(openTime int64, open, high, low, closePrice, volume string) (models.Bar, error) {
	bar := models.Bar{Time: time.UnixMilli(openTime).UTC()}
	fields := []struct {
		raw string
		dst *float64
	}{
		{open, &bar.Open},
		{high, &bar.High},
		{low, &bar.Low},
		{closePrice, &bar.Close},
		{volume, &bar.Volume},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return models.Bar{}, fmt.Errorf("некорректное значение свечи %q: %w", f.raw, err)
		}
		*f.dst, _ = d.Float64()
	}
	return bar, nil
}

// New создает клиент биржи по имени из конфигурации
func New(cfg config.ExchangeConfig) (MarketAPI, error) {
	switch cfg.Name {
	case "binance":
		return NewBinanceAPI(cfg)
	default:
		return nil, fmt.Errorf("неподдерживаемая биржа %q (поддерживается: binance)", cfg.Name)
	}
}
