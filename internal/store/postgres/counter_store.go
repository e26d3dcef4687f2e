package postgres

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

func getCounter(ctx context.Context, q querier, authority string, forUpdate bool) (domain.Counter, error) {
	query := `SELECT authority, count FROM counters WHERE authority = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		c     domain.Counter
		count int32
	)
	if err := q.QueryRow(ctx, query, authority).Scan(&c.Authority, &count); err != nil {
		return domain.Counter{}, fmt.Errorf("postgres: get counter %s: %w", authority, mapErr(err))
	}
	c.Count = uint16(count)
	return c, nil
}

func saveCounter(ctx context.Context, q querier, c domain.Counter, created bool) error {
	query := `UPDATE counters SET count = $2 WHERE authority = $1`
	if created {
		query = `INSERT INTO counters (authority, count) VALUES ($1, $2)`
	}
	if _, err := q.Exec(ctx, query, c.Authority, int32(c.Count)); err != nil {
		return fmt.Errorf("postgres: save counter %s: %w", c.Authority, mapErr(err))
	}
	return nil
}

func getClaimState(ctx context.Context, q querier, user string) (domain.ClaimState, error) {
	var c domain.ClaimState
	err := q.QueryRow(ctx,
		`SELECT user_id, last_claim FROM claim_states WHERE user_id = $1 FOR UPDATE`, user,
	).Scan(&c.User, &c.LastClaim)
	if err != nil {
		return domain.ClaimState{}, fmt.Errorf("postgres: get claim state %s: %w", user, mapErr(err))
	}
	return c, nil
}

func saveClaimState(ctx context.Context, q querier, c domain.ClaimState, created bool) error {
	query := `UPDATE claim_states SET last_claim = $2 WHERE user_id = $1`
	if created {
		query = `INSERT INTO claim_states (user_id, last_claim) VALUES ($1, $2)`
	}
	if _, err := q.Exec(ctx, query, c.User, c.LastClaim); err != nil {
		return fmt.Errorf("postgres: save claim state %s: %w", c.User, mapErr(err))
	}
	return nil
}
