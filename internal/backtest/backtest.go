// Package backtest симулирует long-only портфель по сигналам стратегии.
//
// Каждая пара торгуется независимо со своим начальным капиталом. Вход и
// выход исполняются по цене закрытия бара сигнала с учетом проскальзывания,
// комиссия берется с каждой стороны сделки.
package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/skalibog/bsig/internal/config"
	"github.com/skalibog/bsig/internal/frame"
	"github.com/skalibog/bsig/pkg/models"
)

// Options параметры симуляции
type Options struct {
	Commission float64       // доля от оборота, на каждую сторону
	Slippage   float64       // доля от цены, на каждую сторону
	InitCash   float64       // капитал на пару
	Timeframe  time.Duration // период бара для годовой нормировки Sharpe
}

// OptionsFrom собирает параметры из конфигурации
func OptionsFrom(cfg config.BacktestConfig, timeframe string) (Options, error) {
	tf, err := models.ParseTimeframe(timeframe)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Commission: cfg.Commission,
		Slippage:   cfg.Slippage,
		InitCash:   cfg.InitCash,
		Timeframe:  tf,
	}, nil
}

// Trade закрытая сделка
type Trade struct {
	Pair       models.Pair
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64 // с проскальзыванием
	ExitPrice  float64 // с проскальзыванием
	Quantity   float64
	PnL        float64 // после комиссий
	Return     float64 // PnL / вложенный капитал
}

// Portfolio результат симуляции по всем парам
type Portfolio struct {
	Index  []time.Time
	Pairs  []models.Pair
	Equity [][]float64 // [пара][бар]
	Trades [][]Trade   // закрытые сделки по парам

	exposed []int
	opts    Options
}

type position struct {
	entryTime  time.Time
	entryPrice float64
	qty        float64
	cost       float64
}

// account состояние одной пары
type account struct {
	opts      Options
	cash      float64
	pos       *position
	lastPrice float64
}

func (a *account) open(ts time.Time, price float64) {
	fill := price * (1 + a.opts.Slippage)
	if a.cash <= 0 || fill <= 0 {
		return
	}
	qty := a.cash / (fill * (1 + a.opts.Commission))
	a.pos = &position{entryTime: ts, entryPrice: fill, qty: qty, cost: a.cash}
	a.cash = 0
}

func (a *account) close(pair models.Pair, ts time.Time, price float64) Trade {
	pos := a.pos
	fill := price * (1 - a.opts.Slippage)
	proceeds := pos.qty * fill * (1 - a.opts.Commission)
	pnl := proceeds - pos.cost

	a.cash += proceeds
	a.pos = nil
	return Trade{
		Pair:       pair,
		EntryTime:  pos.entryTime,
		ExitTime:   ts,
		EntryPrice: pos.entryPrice,
		ExitPrice:  fill,
		Quantity:   pos.qty,
		PnL:        pnl,
		Return:     pnl / pos.cost,
	}
}

// equity оценка по последней известной цене закрытия
func (a *account) equity() float64 {
	if a.pos == nil {
		return a.cash
	}
	return a.cash + a.pos.qty*a.lastPrice
}

// Simulate прогоняет сигналы по ценам закрытия. Сигнал входа игнорируется при
// открытой позиции, сигнал выхода - при закрытой. Бары с неконечной ценой
// пропускаются, позиция на них переоценивается по последней цене.
func Simulate(closes *frame.PairTable, signals *frame.SignalTable, opts Options) (*Portfolio, error) {
	if closes == nil || signals == nil {
		return nil, fmt.Errorf("нет цен или сигналов для симуляции")
	}
	if !signals.Matches(closes) {
		return nil, fmt.Errorf("таблица сигналов не совпадает с таблицей цен по индексу или парам")
	}
	if opts.InitCash <= 0 {
		return nil, fmt.Errorf("начальный капитал должен быть > 0")
	}

	p := &Portfolio{
		Index:   closes.Index,
		Pairs:   closes.Pairs,
		Equity:  make([][]float64, len(closes.Pairs)),
		Trades:  make([][]Trade, len(closes.Pairs)),
		exposed: make([]int, len(closes.Pairs)),
		opts:    opts,
	}

	for j, pair := range closes.Pairs {
		acc := &account{opts: opts, cash: opts.InitCash}
		prices := closes.Values[j]
		sig := signals.Values[j]
		equity := make([]float64, len(prices))

		for i, price := range prices {
			if !math.IsNaN(price) && !math.IsInf(price, 0) {
				acc.lastPrice = price
				switch {
				case sig[i] == models.SignalEntry && acc.pos == nil:
					acc.open(closes.Index[i], price)
				case sig[i] == models.SignalExit && acc.pos != nil:
					p.Trades[j] = append(p.Trades[j], acc.close(pair, closes.Index[i], price))
				}
			}
			if acc.pos != nil {
				p.exposed[j]++
			}
			equity[i] = acc.equity()
		}
		p.Equity[j] = equity
	}
	return p, nil
}
