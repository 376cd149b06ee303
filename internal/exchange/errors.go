package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/adshao/go-binance/v2/common"
	"github.com/skalibog/bsig/pkg/models"
)

var (
	// ErrNoPairsAvailable в каталоге нет активных пар с нужной валютой котировки
	ErrNoPairsAvailable = errors.New("нет доступных пар")
	// ErrTransient временная ошибка, запрос можно повторить
	ErrTransient = errors.New("временная ошибка биржи")
	// ErrEmptyHistory биржа не вернула ни одной свечи в диапазоне
	ErrEmptyHistory = errors.New("пустая история свечей")
)

// Коды Binance, после которых запрос имеет смысл повторить
var transientCodes = map[int64]struct{}{
	-1001: {}, // DISCONNECTED
	-1003: {}, // TOO_MANY_REQUESTS
	-1007: {}, // TIMEOUT
	-1008: {}, // SERVER_BUSY
}

// FetchError ошибка загрузки истории одной пары
type FetchError struct {
	Pair      models.Pair
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	kind := "постоянная"
	if e.Transient {
		kind = "временная"
	}
	return fmt.Sprintf("ошибка загрузки %s (%s): %v", e.Pair, kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient определяет, можно ли повторить запрос после ошибки
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		_, ok := transientCodes[apiErr.Code]
		return ok
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
