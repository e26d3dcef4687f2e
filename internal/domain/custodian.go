package domain

import "context"

// Custodian moves and mints tokens. Implementations must run inside the
// caller's transaction so a failed transfer undoes the ledger mutation that
// preceded it.
type Custodian interface {
	// Transfer returns ErrInsufficientBalance or ErrOwnerMismatch on failure.
	Transfer(ctx context.Context, from, to string, amount uint64) error
	// Mint returns ErrMintUnauthorized when minter is not the mint authority.
	Mint(ctx context.Context, minter, to string, amount uint64) error
	Balance(ctx context.Context, account string) (uint64, error)
}

// Account is a token balance held by Owner.
type Account struct {
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Amount uint64 `json:"amount"`
}
