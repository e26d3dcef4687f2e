package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

const marketSelectCols = `id, authority, market_index, question, description,
	options::text, outcome, collateral_balance::text, virtual_liquidity::text,
	created_at, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m                domain.Market
		index            int32
		outcome          int16
		opts, coll, virt string
	)
	err := row.Scan(
		&m.ID, &m.Authority, &index, &m.Question, &m.Description,
		&opts, &outcome, &coll, &virt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Index = uint16(index)
	m.Outcome = domain.Outcome(outcome)
	if err := m.Options.UnmarshalJSON([]byte(opts)); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: decode options of %s: %w", m.ID, err)
	}
	if m.CollateralBalance, err = parseNumeric(coll, "collateral_balance"); err != nil {
		return domain.Market{}, err
	}
	if m.VirtualLiquidity, err = parseNumeric(virt, "virtual_liquidity"); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

func getMarket(ctx context.Context, q querier, id string, forUpdate bool) (domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	m, err := scanMarket(q.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, mapErr(err))
	}
	return m, nil
}

func insertMarket(ctx context.Context, q querier, m domain.Market) error {
	opts, err := m.Options.MarshalJSON()
	if err != nil {
		return fmt.Errorf("postgres: encode options: %w", err)
	}
	const query = `
		INSERT INTO markets (
			id, authority, market_index, question, description, options,
			outcome, collateral_balance, virtual_liquidity, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8::numeric, $9::numeric, $10, $11)`

	_, err = q.Exec(ctx, query,
		m.ID, m.Authority, int32(m.Index), m.Question, m.Description, string(opts),
		int16(m.Outcome), numeric(m.CollateralBalance), numeric(m.VirtualLiquidity),
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert market %s: %w", m.ID, mapErr(err))
	}
	return nil
}

// updateMarket writes the mutable fields. Identity, question and virtual
// liquidity never change after creation.
func updateMarket(ctx context.Context, q querier, m domain.Market) error {
	opts, err := m.Options.MarshalJSON()
	if err != nil {
		return fmt.Errorf("postgres: encode options: %w", err)
	}
	const query = `
		UPDATE markets SET
			options            = $2::jsonb,
			outcome            = $3,
			collateral_balance = $4::numeric,
			updated_at         = $5
		WHERE id = $1`

	tag, err := q.Exec(ctx, query, m.ID, string(opts), int16(m.Outcome), numeric(m.CollateralBalance), m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, domain.ErrNotFound)
	}
	return nil
}

func listMarkets(ctx context.Context, q querier, f domain.MarketFilter) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Authority != "" {
		query += fmt.Sprintf(" AND authority = $%d", argIdx)
		args = append(args, f.Authority)
		argIdx++
	}
	switch f.Status {
	case "open":
		query += " AND outcome = 0"
	case "cancelled":
		query += " AND outcome = 1"
	case "resolved":
		query += " AND outcome >= 2"
	case "terminal":
		query += " AND outcome <> 0"
	}

	query += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}
