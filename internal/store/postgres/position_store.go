package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

const positionSelectCols = `market_id, user_id, option_index, shares::text, claimed, created_at, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p      domain.Position
		index  int16
		shares string
	)
	if err := row.Scan(&p.MarketID, &p.User, &index, &shares, &p.Claimed, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Position{}, err
	}
	p.OptionIndex = uint8(index)
	v, err := parseNumeric(shares, "shares")
	if err != nil {
		return domain.Position{}, err
	}
	p.Shares = v
	return p, nil
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func getPosition(ctx context.Context, q querier, marketID, user string, forUpdate bool) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE market_id = $1 AND user_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	p, err := scanPosition(q.QueryRow(ctx, query, marketID, user))
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %s/%s: %w", marketID, user, mapErr(err))
	}
	return p, nil
}

// savePosition upserts p; claimed never flips back to false.
func savePosition(ctx context.Context, q querier, p domain.Position) error {
	const query = `
		INSERT INTO positions (market_id, user_id, option_index, shares, claimed, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT (market_id, user_id) DO UPDATE SET
			shares     = EXCLUDED.shares,
			claimed    = positions.claimed OR EXCLUDED.claimed,
			updated_at = EXCLUDED.updated_at`

	_, err := q.Exec(ctx, query,
		p.MarketID, p.User, int16(p.OptionIndex), numeric(p.Shares), p.Claimed, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save position %s/%s: %w", p.MarketID, p.User, err)
	}
	return nil
}

func listPositionsByUser(ctx context.Context, q querier, user string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE user_id = $1 ORDER BY updated_at DESC`
	args := []any{user}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions of %s: %w", user, err)
	}
	positions, err := collectPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions of %s: %w", user, err)
	}
	return positions, nil
}

func listPositionsByMarket(ctx context.Context, q querier, marketID string) ([]domain.Position, error) {
	rows, err := q.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE market_id = $1 ORDER BY created_at, user_id`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions in %s: %w", marketID, err)
	}
	positions, err := collectPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions in %s: %w", marketID, err)
	}
	return positions, nil
}
