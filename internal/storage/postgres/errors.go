package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgSerializationFail   = "40001"
	pgDeadlockDetected    = "40P01"
	pgLockNotAvailable    = "55P03"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pgErrorCode(err) == pgForeignKeyViolation
}

// classifyTxError помечает deadlock и serialization failure как ErrTxConflict,
// сохраняя исходную ошибку в цепочке.
func classifyTxError(err error) error {
	if err == nil || errors.Is(err, domain.ErrTxConflict) {
		return err
	}
	switch pgErrorCode(err) {
	case pgDeadlockDetected, pgSerializationFail, pgLockNotAvailable:
		return fmt.Errorf("%w: %w", domain.ErrTxConflict, err)
	default:
		return err
	}
}
