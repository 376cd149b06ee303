package storage

import (
	"context"
	"fmt"
	"math"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/skalibog/bsig/internal/config"
	"github.com/skalibog/bsig/internal/frame"
	"github.com/skalibog/bsig/pkg/logger"
	"github.com/skalibog/bsig/pkg/models"
	"go.uber.org/zap"
)

const writeBatchSize = 5000

// InfluxDBStorage архив таблиц цен и сигналов в InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(ctx context.Context, cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	return &InfluxDBStorage{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() error {
	s.client.Close()
	return nil
}

// SavePriceTable сохраняет свечи всех пар таблицы
func (s *InfluxDBStorage) SavePriceTable(ctx context.Context, table *frame.PriceTable, interval string) error {
	points := candlePoints(table, interval)
	if err := s.write(ctx, points); err != nil {
		return fmt.Errorf("ошибка записи свечей: %w", err)
	}
	logger.Debug("Свечи записаны в InfluxDB", zap.Int("points", len(points)))
	return nil
}

// SaveSignals сохраняет ненулевые сигналы стратегии
func (s *InfluxDBStorage) SaveSignals(ctx context.Context, strategy string, signals *frame.SignalTable) error {
	points := signalPoints(strategy, signals)
	if err := s.write(ctx, points); err != nil {
		return fmt.Errorf("ошибка записи сигналов: %w", err)
	}
	logger.Debug("Сигналы записаны в InfluxDB",
		zap.String("strategy", strategy),
		zap.Int("points", len(points)))
	return nil
}

func (s *InfluxDBStorage) write(ctx context.Context, points []*write.Point) error {
	for start := 0; start < len(points); start += writeBatchSize {
		end := min(start+writeBatchSize, len(points))
		if err := s.writeAPI.WritePoint(ctx, points[start:end]...); err != nil {
			return err
		}
	}
	return nil
}

// candlePoints одна точка на (пара, время); строки с NaN пропускаются
func candlePoints(table *frame.PriceTable, interval string) []*write.Point {
	var points []*write.Point
	for _, pair := range table.Pairs() {
		fields := table.Fields(pair)
		cols := make([][]float64, len(fields))
		for j, f := range fields {
			cols[j], _ = table.Column(frame.Key{Pair: pair, Field: f})
		}

		for i := 0; i < table.Len(); i++ {
			values := make(map[string]interface{}, len(fields))
			for j, f := range fields {
				if v := cols[j][i]; !math.IsNaN(v) {
					values[string(f)] = v
				}
			}
			if len(values) == 0 {
				continue
			}
			points = append(points, influxdb2.NewPoint(
				"candles",
				map[string]string{
					"pair":     string(pair),
					"interval": interval,
				},
				values,
				table.Time(i),
			))
		}
	}
	return points
}

// signalPoints точки только для ненулевых сигналов
func signalPoints(strategy string, signals *frame.SignalTable) []*write.Point {
	var points []*write.Point
	for j, pair := range signals.Pairs {
		for i, sig := range signals.Values[j] {
			if sig == models.SignalHold {
				continue
			}
			points = append(points, influxdb2.NewPoint(
				"signals",
				map[string]string{
					"pair":     string(pair),
					"strategy": strategy,
				},
				map[string]interface{}{
					"signal": int64(sig),
				},
				signals.Index[i],
			))
		}
	}
	return points
}
