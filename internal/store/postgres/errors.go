package postgres

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

const uniqueViolation = "23505"

// mapErr converts driver errors into domain sentinels.
func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrAlreadyExists
	}
	return err
}

// NUMERIC(20,0) columns carry the full uint64 range; they travel as text.
func numeric(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseNumeric(s, column string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("postgres: parse %s %q: %w", column, s, err)
	}
	return v, nil
}
