package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// accounts implements custody.Accounts on a transaction.
type accounts struct {
	q querier
}

func (a accounts) LockAccount(ctx context.Context, id, owner string) (domain.Account, error) {
	if _, err := a.q.Exec(ctx,
		`INSERT INTO balances (account, owner, amount) VALUES ($1, $2, 0) ON CONFLICT (account) DO NOTHING`,
		id, owner,
	); err != nil {
		return domain.Account{}, fmt.Errorf("postgres: open account %s: %w", id, err)
	}

	var (
		acct   domain.Account
		amount string
	)
	err := a.q.QueryRow(ctx,
		`SELECT account, owner, amount::text FROM balances WHERE account = $1 FOR UPDATE`, id,
	).Scan(&acct.ID, &acct.Owner, &amount)
	if err != nil {
		return domain.Account{}, fmt.Errorf("postgres: lock account %s: %w", id, mapErr(err))
	}
	if acct.Amount, err = parseNumeric(amount, "amount"); err != nil {
		return domain.Account{}, err
	}
	return acct, nil
}

func (a accounts) SaveAccount(ctx context.Context, acct domain.Account) error {
	_, err := a.q.Exec(ctx,
		`UPDATE balances SET amount = $2::numeric, updated_at = NOW() WHERE account = $1`,
		acct.ID, numeric(acct.Amount))
	if err != nil {
		return fmt.Errorf("postgres: save account %s: %w", acct.ID, err)
	}
	return nil
}

func getBalance(ctx context.Context, q querier, account string) (uint64, error) {
	var amount string
	err := q.QueryRow(ctx, `SELECT amount::text FROM balances WHERE account = $1`, account).Scan(&amount)
	if err != nil {
		if errors.Is(mapErr(err), domain.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: get balance %s: %w", account, err)
	}
	return parseNumeric(amount, "amount")
}
