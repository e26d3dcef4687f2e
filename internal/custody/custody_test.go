package custody

import (
	"context"
	"errors"
	"testing"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

type memAccounts map[string]domain.Account

func (m memAccounts) LockAccount(_ context.Context, id, owner string) (domain.Account, error) {
	if a, ok := m[id]; ok {
		return a, nil
	}
	return domain.Account{ID: id, Owner: owner}, nil
}

func (m memAccounts) SaveAccount(_ context.Context, a domain.Account) error {
	m[a.ID] = a
	return nil
}

var testCfg = Config{ProgramOwner: "program", MintAuthority: "minter"}

func TestLedger_MintAndTransfer(t *testing.T) {
	ctx := context.Background()
	accts := memAccounts{}
	l := New(accts, testCfg)

	if err := l.Mint(ctx, "minter", "alice", 100); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	escrow := domain.EscrowAccount("m1")
	if err := l.Transfer(ctx, "alice", escrow, 60); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	if got, _ := l.Balance(ctx, "alice"); got != 40 {
		t.Errorf("alice = %d, want 40", got)
	}
	if accts[escrow].Amount != 60 || accts[escrow].Owner != "program" {
		t.Errorf("escrow = %+v", accts[escrow])
	}
}

func TestLedger_Errors(t *testing.T) {
	ctx := context.Background()
	accts := memAccounts{
		"alice":                    {ID: "alice", Owner: "alice", Amount: 10},
		domain.EscrowAccount("m1"): {ID: domain.EscrowAccount("m1"), Owner: "mallory", Amount: 10},
	}
	l := New(accts, testCfg)

	if err := l.Transfer(ctx, "alice", "bob", 11); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("overdraw: err = %v", err)
	}
	if err := l.Transfer(ctx, domain.EscrowAccount("m1"), "alice", 1); !errors.Is(err, domain.ErrOwnerMismatch) {
		t.Errorf("foreign escrow: err = %v", err)
	}
	if err := l.Mint(ctx, "alice", "alice", 1); !errors.Is(err, domain.ErrMintUnauthorized) {
		t.Errorf("mint by user: err = %v", err)
	}
	if accts["alice"].Amount != 10 {
		t.Errorf("alice changed to %d", accts["alice"].Amount)
	}
	if domain.KindOf(domain.ErrOwnerMismatch) != domain.KindCustody {
		t.Errorf("owner mismatch kind = %s", domain.KindOf(domain.ErrOwnerMismatch))
	}
}
