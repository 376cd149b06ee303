package strategy

import (
	"fmt"

	"github.com/skalibog/bsig/internal/config"
	"github.com/skalibog/bsig/internal/frame"
	"github.com/skalibog/bsig/internal/indicator"
	"github.com/skalibog/bsig/pkg/models"
)

// SMACross вход, пока быстрая средняя выше медленной; выход, пока ниже
type SMACross struct {
	Base
	fast, slow int
}

// NewSMACross создает стратегию пересечения средних
func NewSMACross(prices *frame.PriceTable, cfg config.SMACrossConfig) (*SMACross, error) {
	if cfg.FastWindow <= 0 || cfg.SlowWindow <= cfg.FastWindow {
		return nil, fmt.Errorf("sma_cross: требуется 0 < fast (%d) < slow (%d)", cfg.FastWindow, cfg.SlowWindow)
	}
	return &SMACross{Base: NewBase(prices), fast: cfg.FastWindow, slow: cfg.SlowWindow}, nil
}

func (s *SMACross) Name() string { return NameSMACross }

func (s *SMACross) GenerateSignals() (*frame.SignalTable, error) {
	return s.perPair(func(_ models.Pair, closes []float64) ([]float64, error) {
		fast := indicator.SMA(closes, s.fast)
		slow := indicator.SMA(closes, s.slow)
		out := make([]float64, len(closes))
		for i := range closes {
			out[i] = decide(fast[i] > slow[i], fast[i] < slow[i])
		}
		return out, nil
	})
}

// RSIBollinger вход при перепроданности ниже нижней полосы, выход при перекупленности выше верхней
type RSIBollinger struct {
	Base
	cfg config.RSIBollingerConfig
}

// NewRSIBollinger создает стратегию RSI + полосы Боллинджера
func NewRSIBollinger(prices *frame.PriceTable, cfg config.RSIBollingerConfig) (*RSIBollinger, error) {
	if cfg.RSIWindow <= 0 || cfg.BBWindow <= 0 || cfg.BBStdDev <= 0 {
		return nil, fmt.Errorf("rsi_bb: окна и bb_std_dev должны быть > 0")
	}
	if cfg.Oversold >= cfg.Overbought {
		return nil, fmt.Errorf("rsi_bb: oversold (%v) должен быть меньше overbought (%v)", cfg.Oversold, cfg.Overbought)
	}
	return &RSIBollinger{Base: NewBase(prices), cfg: cfg}, nil
}

func (s *RSIBollinger) Name() string { return NameRSIBollinger }

func (s *RSIBollinger) GenerateSignals() (*frame.SignalTable, error) {
	return s.perPair(func(_ models.Pair, closes []float64) ([]float64, error) {
		rsi := indicator.RSI(closes, s.cfg.RSIWindow)
		upper, _, lower := indicator.Bollinger(closes, s.cfg.BBWindow, s.cfg.BBStdDev)
		out := make([]float64, len(closes))
		for i, c := range closes {
			entry := rsi[i] < s.cfg.Oversold && c < lower[i]
			exit := rsi[i] > s.cfg.Overbought && c > upper[i]
			out[i] = decide(entry, exit)
		}
		return out, nil
	})
}

// VWAPReversion вход при цене ниже VWAP с дисконтом, выход при цене выше VWAP
type VWAPReversion struct {
	Base
	window   int
	discount float64
}

// NewVWAPReversion создает стратегию возврата к VWAP
func NewVWAPReversion(prices *frame.PriceTable, cfg config.VWAPReversionConfig) (*VWAPReversion, error) {
	if cfg.Window <= 0 || cfg.Discount <= 0 {
		return nil, fmt.Errorf("vwap_reversion: window и discount должны быть > 0")
	}
	return &VWAPReversion{Base: NewBase(prices), window: cfg.Window, discount: cfg.Discount}, nil
}

func (s *VWAPReversion) Name() string { return NameVWAPReversion }

func (s *VWAPReversion) GenerateSignals() (*frame.SignalTable, error) {
	return s.perPair(func(pair models.Pair, closes []float64) ([]float64, error) {
		high, err := s.series(pair, models.FieldHigh)
		if err != nil {
			return nil, err
		}
		low, err := s.series(pair, models.FieldLow)
		if err != nil {
			return nil, err
		}
		volume, err := s.series(pair, models.FieldVolume)
		if err != nil {
			return nil, err
		}

		vwap := indicator.VWAP(high, low, closes, volume, s.window)
		out := make([]float64, len(closes))
		for i, c := range closes {
			out[i] = decide(c < s.discount*vwap[i], c > vwap[i])
		}
		return out, nil
	})
}

// VolumeSpikeBreakout вход на всплеске объема с пробоем максимума предыдущего окна,
// выход при пробое минимума предыдущего окна
type VolumeSpikeBreakout struct {
	Base
	window     int
	multiplier float64
}

// NewVolumeSpikeBreakout создает стратегию пробоя на всплеске объема
func NewVolumeSpikeBreakout(prices *frame.PriceTable, cfg config.VolumeSpikeBreakoutConfig) (*VolumeSpikeBreakout, error) {
	if cfg.Window <= 0 || cfg.Multiplier <= 0 {
		return nil, fmt.Errorf("volume_spike_breakout: window и multiplier должны быть > 0")
	}
	return &VolumeSpikeBreakout{Base: NewBase(prices), window: cfg.Window, multiplier: cfg.Multiplier}, nil
}

func (s *VolumeSpikeBreakout) Name() string { return NameVolumeSpikeBreakout }

func (s *VolumeSpikeBreakout) GenerateSignals() (*frame.SignalTable, error) {
	return s.perPair(func(pair models.Pair, closes []float64) ([]float64, error) {
		volume, err := s.series(pair, models.FieldVolume)
		if err != nil {
			return nil, err
		}

		avgVolume := indicator.SMA(volume, s.window)
		prevHigh := indicator.Shift(indicator.RollingMax(closes, s.window), 1)
		prevLow := indicator.Shift(indicator.RollingMin(closes, s.window), 1)

		out := make([]float64, len(closes))
		for i, c := range closes {
			entry := volume[i] > s.multiplier*avgVolume[i] && c > prevHigh[i]
			exit := c < prevLow[i]
			out[i] = decide(entry, exit)
		}
		return out, nil
	})
}
