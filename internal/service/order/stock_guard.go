package order

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

// StockGuard определяет, как списываются остатки при оформлении заказа.
type StockGuard string

const (
	// StockGuardAtomic списывает каждую позицию условной записью "остаток >= qty".
	// Параллельные заказы не могут увести остаток в минус.
	StockGuardAtomic StockGuard = "atomic"
	// StockGuardLegacy списывает безусловной дельтой после проверки чтением.
	// Между проверкой и записью возможна гонка и перепродажа.
	StockGuardLegacy StockGuard = "legacy"
)

// Valid проверяет, что режим поддерживается.
func (g StockGuard) Valid() bool {
	return g == StockGuardAtomic || g == StockGuardLegacy
}

// ParseStockGuard разбирает значение режима; пустая строка означает atomic.
func ParseStockGuard(raw string) (StockGuard, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return StockGuardAtomic, nil
	}
	guard := StockGuard(raw)
	if !guard.Valid() {
		return "", fmt.Errorf("unknown stock guard %q: expected atomic or legacy", raw)
	}
	return guard, nil
}

// ParseQuantity переводит введённое количество в число.
// Пустое, нечисловое и отрицательное значение дают 0, и такая позиция пропускается.
// Большие значения ограничиваются domain.MaxLineQuantity.
func ParseQuantity(raw string) int {
	qty, err := strconv.Atoi(strings.TrimSpace(raw))
	switch {
	case errors.Is(err, strconv.ErrRange) && qty > 0:
		return domain.MaxLineQuantity
	case err != nil || qty < 0:
		return 0
	}
	return min(qty, domain.MaxLineQuantity)
}
