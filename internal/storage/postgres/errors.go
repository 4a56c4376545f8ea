package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

const (
	pgUniqueViolation = "23505"
	// Класс 08: ошибки соединения, 57P0x: остановка или перезапуск сервера.
	pgConnectionClass = "08"
	pgAdminShutdown   = "57P01"
	pgCannotConnect   = "57P03"
)

// wrapErr добавляет к ошибке контекст операции и помечает сетевые сбои
// как domain.ErrStorageUnavailable. nil остаётся nil.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConnectionError(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == pgConnectionClass {
			return true
		}
		return pgErr.Code == pgAdminShutdown || pgErr.Code == pgCannotConnect
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
