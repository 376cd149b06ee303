// Package metrics экспортирует счетчики загрузки данных и прогонов стратегий для Prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skalibog/bsig/pkg/logger"
	"go.uber.org/zap"
)

var (
	ExchangeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bsig_exchange_requests_total", Help: "Запросы страниц свечей к бирже"},
		[]string{"result"},
	)
	ExchangeRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "bsig_exchange_retries_total", Help: "Повторы после временных ошибок"},
	)
	PairsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bsig_pairs_total", Help: "Пары по итогу загрузки"},
		[]string{"status"},
	)
	CacheLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bsig_cache_loads_total", Help: "Обращения к кэшу данных"},
		[]string{"result"},
	)
	StrategyRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bsig_strategy_runs_total", Help: "Прогоны стратегий"},
		[]string{"strategy", "status"},
	)
	StrategyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "bsig_strategy_duration_seconds", Help: "Длительность прогона стратегии"},
		[]string{"strategy"},
	)
)

func init() {
	prometheus.MustRegister(ExchangeRequests, ExchangeRetries, PairsFetched, CacheLoads, StrategyRuns, StrategyDuration)
}

// Server HTTP-эндпоинт /metrics
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Serve запускает эндпоинт /metrics в фоне
func Serve(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Ошибка сервера метрик", zap.Error(err))
		}
	}()
	logger.Info("Метрики доступны", zap.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr фактический адрес прослушивания
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Close останавливает сервер
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
