package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skalibog/bsig/pkg/logger"
	"github.com/skalibog/bsig/pkg/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

const dateLayout = "2006-01-02"

// Поддерживаемые форматы кэша
const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"
)

// Config представляет полную конфигурацию запуска
type Config struct {
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Data       DataConfig       `yaml:"data"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Strategies StrategiesConfig `yaml:"strategies"`
	Results    ResultsConfig    `yaml:"results"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	UI         UIConfig         `yaml:"ui"`
}

// ExchangeConfig содержит настройки подключения к бирже
type ExchangeConfig struct {
	Name             string `yaml:"name"`
	Market           string `yaml:"market"` // spot или futures
	APIKey           string `yaml:"api_key"`
	APISecret        string `yaml:"api_secret"`
	Testnet          bool   `yaml:"testnet"`
	BaseURL          string `yaml:"base_url"`
	PageSize         int    `yaml:"page_size"`
	RequestDelayMs   int    `yaml:"request_delay_ms"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`
	MaxRetries       int    `yaml:"max_retries"`
	RetryDelayMs     int    `yaml:"retry_delay_ms"`
	MaxConcurrent    int    `yaml:"max_concurrent"`
	RateLimitPerMin  int    `yaml:"rate_limit_per_min"`
}

// RequestDelay пауза между страницами
func (c ExchangeConfig) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMs) * time.Millisecond
}

// RequestTimeout таймаут одного запроса
func (c ExchangeConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// RetryDelay пауза перед повтором после сетевой ошибки
func (c ExchangeConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// DataConfig содержит параметры набора данных и кэша
type DataConfig struct {
	BaseCurrency string `yaml:"base_currency"`
	NumPairs     int    `yaml:"num_pairs"`
	Timeframe    string `yaml:"timeframe"`
	StartDate    string `yaml:"start_date"`
	EndDate      string `yaml:"end_date"`
	Dir          string `yaml:"dir"`
	File         string `yaml:"file"`
	Format       string `yaml:"format"`
	ExportCSV    bool   `yaml:"export_csv"`
}

// BacktestConfig параметры симуляции
type BacktestConfig struct {
	Commission float64 `yaml:"commission"`
	Slippage   float64 `yaml:"slippage"`
	InitCash   float64 `yaml:"init_cash"`
}

// StrategiesConfig набор включенных стратегий и их параметры
type StrategiesConfig struct {
	Enabled             []string                  `yaml:"enabled"`
	SMACross            SMACrossConfig            `yaml:"sma_cross"`
	RSIBollinger        RSIBollingerConfig        `yaml:"rsi_bb"`
	VWAPReversion       VWAPReversionConfig       `yaml:"vwap_reversion"`
	VolumeSpikeBreakout VolumeSpikeBreakoutConfig `yaml:"volume_spike_breakout"`
}

// SMACrossConfig настройки пересечения скользящих средних
type SMACrossConfig struct {
	FastWindow int `yaml:"fast_window"`
	SlowWindow int `yaml:"slow_window"`
}

// RSIBollingerConfig настройки RSI + полосы Боллинджера
type RSIBollingerConfig struct {
	RSIWindow  int     `yaml:"rsi_window"`
	BBWindow   int     `yaml:"bb_window"`
	BBStdDev   float64 `yaml:"bb_std_dev"`
	Oversold   float64 `yaml:"oversold"`
	Overbought float64 `yaml:"overbought"`
}

// VWAPReversionConfig настройки возврата к VWAP
type VWAPReversionConfig struct {
	Window   int     `yaml:"window"`
	Discount float64 `yaml:"discount"`
}

// VolumeSpikeBreakoutConfig настройки пробоя на всплеске объема
type VolumeSpikeBreakoutConfig struct {
	Window     int     `yaml:"window"`
	Multiplier float64 `yaml:"multiplier"`
}

// ResultsConfig куда сохранять результаты
type ResultsConfig struct {
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// StorageConfig настройки архива InfluxDB
type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// LoggingConfig настройки логирования
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// MetricsConfig адрес HTTP-эндпоинта Prometheus; пусто - выключено
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	Interactive bool `yaml:"interactive"`
}

// Default возвращает конфигурацию по умолчанию
func Default() Config {
	return Config{
		Exchange: ExchangeConfig{
			Name:             "binance",
			Market:           "spot",
			PageSize:         1000,
			RequestDelayMs:   1000,
			RequestTimeoutMs: 15000,
			MaxRetries:       3,
			RetryDelayMs:     5000,
			MaxConcurrent:    1,
			RateLimitPerMin:  1200,
		},
		Data: DataConfig{
			BaseCurrency: "BTC",
			NumPairs:     100,
			Timeframe:    "1m",
			StartDate:    "2025-02-01",
			EndDate:      "2025-02-28",
			Dir:          "data",
			Format:       FormatParquet,
			ExportCSV:    true,
		},
		Backtest: BacktestConfig{
			Commission: 0.001,
			Slippage:   0.0005,
			InitCash:   100,
		},
		Strategies: StrategiesConfig{
			Enabled:             []string{"sma_cross", "rsi_bb", "vwap_reversion", "volume_spike_breakout"},
			SMACross:            SMACrossConfig{FastWindow: 10, SlowWindow: 50},
			RSIBollinger:        RSIBollingerConfig{RSIWindow: 14, BBWindow: 20, BBStdDev: 2, Oversold: 30, Overbought: 70},
			VWAPReversion:       VWAPReversionConfig{Window: 14, Discount: 0.98},
			VolumeSpikeBreakout: VolumeSpikeBreakoutConfig{Window: 20, Multiplier: 2},
		},
		Results: ResultsConfig{Dir: "results"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load загружает конфигурацию из файла поверх значений по умолчанию
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logger.Info("Загружена конфигурация",
		zap.String("path", path),
		zap.String("exchange", cfg.Exchange.Name),
		zap.String("base", cfg.Data.BaseCurrency),
		zap.Int("pairs", cfg.Data.NumPairs),
		zap.String("timeframe", cfg.Data.Timeframe),
		zap.Strings("strategies", cfg.Strategies.Enabled))
	return cfg, nil
}

// applyEnv переопределяет секреты из окружения
func (c *Config) applyEnv() {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		c.Exchange.APISecret = v
	}
	if v := os.Getenv("INFLUXDB_TOKEN"); v != "" {
		c.Storage.Token = v
	}
}

// Validate проверяет согласованность параметров
func (c Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Exchange.Name == "" {
		fail("не указана биржа")
	}
	switch c.Exchange.Market {
	case "spot", "futures":
	default:
		fail("неизвестный рынок %q (spot|futures)", c.Exchange.Market)
	}
	if c.Exchange.PageSize <= 0 {
		fail("page_size должен быть > 0")
	}
	if c.Exchange.MaxRetries < 0 {
		fail("max_retries не может быть отрицательным")
	}
	if c.Exchange.MaxConcurrent <= 0 {
		fail("max_concurrent должен быть > 0")
	}
	if c.Exchange.RequestDelayMs < 0 || c.Exchange.RetryDelayMs < 0 || c.Exchange.RequestTimeoutMs < 0 {
		fail("задержки и таймауты не могут быть отрицательными")
	}

	if strings.TrimSpace(c.Data.BaseCurrency) == "" {
		fail("не указана базовая валюта")
	}
	if c.Data.NumPairs <= 0 {
		fail("num_pairs должен быть > 0")
	}
	if _, err := models.ParseTimeframe(c.Data.Timeframe); err != nil {
		errs = append(errs, err)
	}
	start, end, err := c.Data.Range()
	if err != nil {
		errs = append(errs, err)
	} else if !end.After(start) {
		fail("end_date раньше start_date")
	}
	switch c.Data.Format {
	case FormatParquet, FormatCSV:
	default:
		fail("неизвестный формат данных %q", c.Data.Format)
	}

	if c.Backtest.Commission < 0 || c.Backtest.Slippage < 0 {
		fail("комиссия и проскальзывание не могут быть отрицательными")
	}
	if c.Backtest.InitCash <= 0 {
		fail("init_cash должен быть > 0")
	}

	s := c.Strategies
	if len(s.Enabled) == 0 {
		fail("не включено ни одной стратегии")
	}
	if s.SMACross.FastWindow <= 0 || s.SMACross.SlowWindow <= s.SMACross.FastWindow {
		fail("sma_cross: требуется 0 < fast_window < slow_window")
	}
	if s.RSIBollinger.RSIWindow <= 0 || s.RSIBollinger.BBWindow <= 0 || s.RSIBollinger.BBStdDev <= 0 {
		fail("rsi_bb: окна и bb_std_dev должны быть > 0")
	}
	if s.RSIBollinger.Oversold >= s.RSIBollinger.Overbought {
		fail("rsi_bb: oversold должен быть меньше overbought")
	}
	if s.VWAPReversion.Window <= 0 || s.VWAPReversion.Discount <= 0 {
		fail("vwap_reversion: window и discount должны быть > 0")
	}
	if s.VolumeSpikeBreakout.Window <= 0 || s.VolumeSpikeBreakout.Multiplier <= 0 {
		fail("volume_spike_breakout: window и multiplier должны быть > 0")
	}

	if c.Storage.Enabled && (c.Storage.URL == "" || c.Storage.Bucket == "" || c.Storage.Organization == "") {
		fail("storage: для InfluxDB нужны url, organization и bucket")
	}

	if len(errs) > 0 {
		return fmt.Errorf("некорректная конфигурация: %w", errors.Join(errs...))
	}
	return nil
}

// Range возвращает полуинтервал [start, end+1d) в UTC
func (d DataConfig) Range() (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(dateLayout, d.StartDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("некорректная start_date %q: %w", d.StartDate, err)
	}
	end, err := time.ParseInLocation(dateLayout, d.EndDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("некорректная end_date %q: %w", d.EndDate, err)
	}
	return start, end.AddDate(0, 0, 1), nil
}

// CachePath путь к файлу кэша; имя производно от отпечатка конфигурации
func (d DataConfig) CachePath() string {
	name := d.File
	if name == "" {
		name = fmt.Sprintf("%s_%s_%s_%s_%dp.%s",
			strings.ToLower(d.BaseCurrency),
			strings.ToLower(d.Timeframe),
			strings.ReplaceAll(d.StartDate, "-", ""),
			strings.ReplaceAll(d.EndDate, "-", ""),
			d.NumPairs,
			d.format())
	}
	return filepath.Join(d.Dir, name)
}

func (d DataConfig) format() string {
	if d.Format == "" {
		return FormatParquet
	}
	return d.Format
}

// CSVPath путь к плоскому CSV рядом с кэшем
func (d DataConfig) CSVPath() string {
	p := d.CachePath()
	return strings.TrimSuffix(p, filepath.Ext(p)) + ".csv"
}
