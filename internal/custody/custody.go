// Package custody moves and mints tokens over a transactional account table.
package custody

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// Accounts is the account table of one store transaction. LockAccount
// creates an empty account owned by owner when id does not exist yet.
type Accounts interface {
	LockAccount(ctx context.Context, id, owner string) (domain.Account, error)
	SaveAccount(ctx context.Context, a domain.Account) error
}

// Config names the program identities: escrow accounts belong to
// ProgramOwner and only MintAuthority may mint.
type Config struct {
	ProgramOwner  string
	MintAuthority string
}

// Ledger implements domain.Custodian.
type Ledger struct {
	accounts Accounts
	cfg      Config
}

// New creates a Ledger over accounts.
func New(accounts Accounts, cfg Config) *Ledger {
	return &Ledger{accounts: accounts, cfg: cfg}
}

// OwnerOf returns the owner an account must have: the program for escrow
// accounts and the account holder otherwise.
func (l *Ledger) OwnerOf(id string) string {
	if strings.HasPrefix(id, domain.EscrowAccount("")) {
		return l.cfg.ProgramOwner
	}
	return id
}

// Transfer moves amount from one account to another. Accounts are locked in
// id order.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}

	first, second := from, to
	if second < first {
		first, second = second, first
	}
	locked := make(map[string]domain.Account, 2)
	for _, id := range []string{first, second} {
		a, err := l.lock(ctx, id)
		if err != nil {
			return err
		}
		locked[id] = a
	}

	src, dst := locked[from], locked[to]
	if src.Amount < amount {
		return fmt.Errorf("custody: transfer %d from %s holding %d: %w", amount, from, src.Amount, domain.ErrInsufficientBalance)
	}
	next := dst.Amount + amount
	if next < dst.Amount {
		return fmt.Errorf("custody: credit %s: %w", to, domain.ErrOverflow)
	}
	src.Amount -= amount
	dst.Amount = next

	if err := l.accounts.SaveAccount(ctx, src); err != nil {
		return fmt.Errorf("custody: save %s: %w", from, err)
	}
	if err := l.accounts.SaveAccount(ctx, dst); err != nil {
		return fmt.Errorf("custody: save %s: %w", to, err)
	}
	return nil
}

// Mint credits newly issued tokens to an account.
func (l *Ledger) Mint(ctx context.Context, minter, to string, amount uint64) error {
	if minter != l.cfg.MintAuthority {
		return domain.ErrMintUnauthorized
	}
	a, err := l.lock(ctx, to)
	if err != nil {
		return err
	}
	next := a.Amount + amount
	if next < a.Amount {
		return fmt.Errorf("custody: mint to %s: %w", to, domain.ErrOverflow)
	}
	a.Amount = next
	if err := l.accounts.SaveAccount(ctx, a); err != nil {
		return fmt.Errorf("custody: save %s: %w", to, err)
	}
	return nil
}

// Balance returns the amount held by an account, zero when it never held any.
func (l *Ledger) Balance(ctx context.Context, account string) (uint64, error) {
	a, err := l.lock(ctx, account)
	if err != nil {
		return 0, err
	}
	return a.Amount, nil
}

func (l *Ledger) lock(ctx context.Context, id string) (domain.Account, error) {
	owner := l.OwnerOf(id)
	a, err := l.accounts.LockAccount(ctx, id, owner)
	if err != nil {
		return domain.Account{}, fmt.Errorf("custody: lock %s: %w", id, err)
	}
	if a.Owner != owner {
		return domain.Account{}, fmt.Errorf("custody: account %s owned by %s: %w", id, a.Owner, domain.ErrOwnerMismatch)
	}
	return a, nil
}
