package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/skalibog/bsig/internal/config"
	"github.com/skalibog/bsig/internal/exchange"
	"github.com/skalibog/bsig/internal/loader"
	"github.com/skalibog/bsig/internal/metrics"
	"github.com/skalibog/bsig/internal/runner"
	"github.com/skalibog/bsig/internal/storage"
	"github.com/skalibog/bsig/internal/ui"
	"github.com/skalibog/bsig/pkg/logger"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	interactive := flag.Bool("interactive", false, "интерактивный просмотр результатов")
	flag.Parse()

	// Секреты из .env, если файл есть
	_ = godotenv.Load()

	if err := run(*configPath, *interactive); err != nil {
		logger.Error("Прогон завершился с ошибкой", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(configPath string, interactive bool) error {
	logger.Info("Проверка наличия файла конфигурации", zap.String("path", configPath))
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("файл конфигурации не найден: %s", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Options{Level: cfg.Logging.Level, Dir: cfg.Logging.Dir}); err != nil {
		return err
	}
	if err := runner.EnsureDirs(cfg); err != nil {
		return err
	}

	// SIGINT/SIGTERM отменяют прогон; кэш при этом не записывается частично
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Serve(cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("ошибка запуска сервера метрик: %w", err)
		}
		defer srv.Close()
	}

	// Инициализируем клиент биржи
	api, err := exchange.New(cfg.Exchange)
	if err != nil {
		return fmt.Errorf("ошибка инициализации клиента биржи: %w", err)
	}
	connector := exchange.NewConnector(api, cfg.Exchange)

	cache, err := storage.NewCache(cfg.Data.Format, cfg.Data.CachePath())
	if err != nil {
		return err
	}
	dataLoader := loader.New(connector, cache, cfg.Data, cfg.Exchange.MaxConcurrent)

	opts, closeSinks, err := runner.OpenSinks(ctx, cfg, runner.DefaultOpeners)
	if err != nil {
		return err
	}
	r, err := runner.New(dataLoader, cfg, opts...)
	if err != nil {
		return multierr.Append(err, closeSinks())
	}
	defer func() {
		if err := r.Close(); err != nil {
			logger.Warn("Ошибка закрытия хранилищ", zap.Error(err))
		}
	}()

	reports, err := r.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Прогон прерван")
		}
		return err
	}

	if interactive || cfg.UI.Interactive {
		logFile := ""
		if cfg.Logging.Dir != "" {
			logFile = filepath.Join(cfg.Logging.Dir, "bsig.json.log")
		}
		return ui.NewResultsUI(r.RunID(), reports, logFile).Start()
	}
	fmt.Println(ui.RenderSummary(r.RunID(), reports))
	return nil
}
