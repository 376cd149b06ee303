// Package indicator оконные статистики по ряду цен. Все функции возвращают ряд
// той же длины, что и вход; значения до заполнения окна равны NaN.
package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// SMA простая скользящая средняя
func SMA(x []float64, n int) []float64 {
	if n <= 0 || len(x) < n {
		return nans(len(x))
	}
	return pad(talib.Sma(x, n), n-1)
}

// RSI индекс относительной силы (сглаживание Уайлдера)
func RSI(x []float64, n int) []float64 {
	if n < 2 || len(x) <= n {
		return nans(len(x))
	}
	return pad(talib.Rsi(x, n), n)
}

// Bollinger полосы Боллинджера: SMA(n) ± k стандартных отклонений
func Bollinger(x []float64, n int, k float64) (upper, middle, lower []float64) {
	if n <= 0 || len(x) < n {
		return nans(len(x)), nans(len(x)), nans(len(x))
	}
	upper, middle, lower = talib.BBands(x, n, k, k, talib.SMA)
	return pad(upper, n-1), pad(middle, n-1), pad(lower, n-1)
}

// RollingMax максимум за окно, включая текущий бар
func RollingMax(x []float64, n int) []float64 {
	switch {
	case n <= 0 || len(x) < n:
		return nans(len(x))
	case n == 1:
		return append([]float64(nil), x...)
	}
	return pad(talib.Max(x, n), n-1)
}

// RollingMin минимум за окно, включая текущий бар
func RollingMin(x []float64, n int) []float64 {
	switch {
	case n <= 0 || len(x) < n:
		return nans(len(x))
	case n == 1:
		return append([]float64(nil), x...)
	}
	return pad(talib.Min(x, n), n-1)
}

// RollingSum сумма за окно. Каждое окно суммируется заново, без скользящего
// вычитания, чтобы равные окна давали побитово равные суммы.
func RollingSum(x []float64, n int) []float64 {
	out := nans(len(x))
	if n <= 0 {
		return out
	}
	for i := n - 1; i < len(x); i++ {
		s := 0.0
		for _, v := range x[i-n+1 : i+1] {
			s += v
		}
		out[i] = s
	}
	return out
}

// VWAP средневзвешенная по объему цена за окно по типичной цене (high+low+close)/3.
// При нулевом объеме в окне значение не определено.
func VWAP(high, low, closes, volume []float64, n int) []float64 {
	pv := make([]float64, len(closes))
	for i := range closes {
		pv[i] = (high[i] + low[i] + closes[i]) / 3 * volume[i]
	}
	num := RollingSum(pv, n)
	den := RollingSum(volume, n)

	out := nans(len(closes))
	for i := range out {
		if den[i] > 0 {
			out[i] = num[i] / den[i]
		}
	}
	return out
}

// Shift сдвигает ряд на k баров вперед (значение i берется из i-k)
func Shift(x []float64, k int) []float64 {
	out := nans(len(x))
	for i := range x {
		if j := i - k; j >= 0 && j < len(x) {
			out[i] = x[j]
		}
	}
	return out
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// pad заменяет первые lookback значений на NaN (talib оставляет там нули)
func pad(x []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(x); i++ {
		x[i] = math.NaN()
	}
	return x
}
