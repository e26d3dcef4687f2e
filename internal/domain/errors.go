package domain

import "errors"

// ErrorKind classifies ledger failures so transports can map them without
// knowing every individual error.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindState         ErrorKind = "state"
	KindArithmetic    ErrorKind = "arithmetic"
	KindAuthorization ErrorKind = "authorization"
	KindRateLimit     ErrorKind = "rate_limit"
	KindNotFound      ErrorKind = "not_found"
	KindConflict      ErrorKind = "conflict"
	KindCustody       ErrorKind = "custody"
	KindInternal      ErrorKind = "internal"
)

// Error is a classified ledger error. Sentinel values below are compared by
// identity, so callers may wrap them freely with fmt.Errorf("...: %w", err).
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "Internal"
}

// Validation errors.
var (
	ErrQuestionTooLong    = newError(KindValidation, "QuestionTooLong", "question too long")
	ErrDescriptionTooLong = newError(KindValidation, "DescriptionTooLong", "description too long")
	ErrOptionNameTooLong  = newError(KindValidation, "OptionNameTooLong", "option name too long")
	ErrInvalidOptionCount = newError(KindValidation, "InvalidOptionCount", "option count must be between 2 and 16")
	ErrMaxOptionsReached  = newError(KindValidation, "MaxOptionsReached", "market already has the maximum number of options")
	ErrInvalidOption      = newError(KindValidation, "InvalidOption", "option index out of range")
	ErrOptionInactive     = newError(KindValidation, "OptionInactive", "option is not active")
	ErrLastActiveOption   = newError(KindValidation, "LastActiveOption", "at least one option must remain active")
	ErrZeroShares         = newError(KindValidation, "ZeroShares", "share amount must be positive")
	ErrInsufficientAmount = newError(KindValidation, "InsufficientAmount", "trade too small to cost any tokens")
	ErrInsufficientShares = newError(KindValidation, "InsufficientShares", "not enough shares in position")
	ErrDifferentOptionBet = newError(KindValidation, "DifferentOptionBet", "position already holds a different option")
	ErrInvalidRequest     = newError(KindValidation, "InvalidRequest", "malformed request")
)

// State errors.
var (
	ErrMarketResolved    = newError(KindState, "MarketResolved", "market already resolved")
	ErrMarketNotResolved = newError(KindState, "MarketNotResolved", "market not resolved")
	ErrAlreadyClaimed    = newError(KindState, "AlreadyClaimed", "position already claimed")
	ErrNotWinner         = newError(KindState, "NotWinner", "not a winning position")
)

// Arithmetic errors.
var (
	ErrOverflow            = newError(KindArithmetic, "Overflow", "arithmetic overflow")
	ErrDivisionByZero      = newError(KindArithmetic, "DivisionByZero", "division by zero")
	ErrNoSharesInMarket    = newError(KindArithmetic, "NoSharesInMarket", "market has no outstanding shares")
	ErrCollateralShortfall = newError(KindArithmetic, "CollateralShortfall", "payout exceeds market collateral")
)

// Authorization, rate limit and lookup errors.
var (
	ErrUnauthorized  = newError(KindAuthorization, "Unauthorized", "caller is not the market authority")
	ErrInvalidSigner = newError(KindAuthorization, "InvalidSigner", "request signature does not match caller")
	ErrClaimTooSoon  = newError(KindRateLimit, "ClaimTooSoon", "reward already claimed within the last 24 hours")
	ErrRateLimited   = newError(KindRateLimit, "RateLimited", "rate limited")
	ErrNotFound      = newError(KindNotFound, "NotFound", "not found")
	ErrAlreadyExists = newError(KindConflict, "AlreadyExists", "already exists")
	ErrLockHeld      = newError(KindConflict, "LockHeld", "lock held by another process")
)

// Custodian errors.
var (
	ErrInsufficientBalance = newError(KindCustody, "InsufficientBalance", "insufficient token balance")
	ErrOwnerMismatch       = newError(KindCustody, "OwnerMismatch", "account owner mismatch")
	ErrMintUnauthorized    = newError(KindCustody, "MintUnauthorized", "minter is not the mint authority")
)

var byCode = func() map[string]*Error {
	m := map[string]*Error{}
	for _, e := range []*Error{
		ErrQuestionTooLong, ErrDescriptionTooLong, ErrOptionNameTooLong, ErrInvalidOptionCount,
		ErrMaxOptionsReached, ErrInvalidOption, ErrOptionInactive, ErrLastActiveOption,
		ErrZeroShares, ErrInsufficientAmount, ErrInsufficientShares, ErrDifferentOptionBet,
		ErrInvalidRequest,
		ErrMarketResolved, ErrMarketNotResolved, ErrAlreadyClaimed, ErrNotWinner,
		ErrOverflow, ErrDivisionByZero, ErrNoSharesInMarket, ErrCollateralShortfall,
		ErrUnauthorized, ErrInvalidSigner, ErrClaimTooSoon, ErrRateLimited,
		ErrNotFound, ErrAlreadyExists, ErrLockHeld,
		ErrInsufficientBalance, ErrOwnerMismatch, ErrMintUnauthorized,
	} {
		m[e.Code] = e
	}
	return m
}()

// ErrorByCode returns the sentinel with the given stable code.
func ErrorByCode(code string) (*Error, bool) {
	e, ok := byCode[code]
	return e, ok
}
