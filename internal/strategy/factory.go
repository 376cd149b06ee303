package strategy

import (
	"fmt"
	"strings"

	"github.com/skalibog/bsig/internal/config"
	"github.com/skalibog/bsig/internal/frame"
)

// Имена стратегий в конфигурации
const (
	NameSMACross            = "sma_cross"
	NameRSIBollinger        = "rsi_bb"
	NameVWAPReversion       = "vwap_reversion"
	NameVolumeSpikeBreakout = "volume_spike_breakout"
)

// Names все поддерживаемые стратегии
func Names() []string {
	return []string{NameSMACross, NameRSIBollinger, NameVWAPReversion, NameVolumeSpikeBreakout}
}

// Build создает стратегию по имени из конфигурации
func Build(name string, prices *frame.PriceTable, cfg config.StrategiesConfig) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameSMACross:
		return checked(NewSMACross(prices, cfg.SMACross))
	case NameRSIBollinger:
		return checked(NewRSIBollinger(prices, cfg.RSIBollinger))
	case NameVWAPReversion:
		return checked(NewVWAPReversion(prices, cfg.VWAPReversion))
	case NameVolumeSpikeBreakout:
		return checked(NewVolumeSpikeBreakout(prices, cfg.VolumeSpikeBreakout))
	default:
		return nil, fmt.Errorf("неизвестная стратегия %q (доступны: %s)", name, strings.Join(Names(), ", "))
	}
}

// checked не допускает типизированный nil в интерфейсе при ошибке конструктора
func checked[S Strategy](s S, err error) (Strategy, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
