package auth

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// Verifier checks request signatures, their freshness and that each signed
// request is accepted only once.
type Verifier struct {
	maxSkew time.Duration
	nonces  domain.NonceStore
	now     func() time.Time
}

// NewVerifier creates a Verifier that rejects timestamps further than maxSkew
// from the current time. Used requests are remembered in process memory
// until WithNonceStore installs a shared store.
func NewVerifier(maxSkew time.Duration) *Verifier {
	return &Verifier{maxSkew: maxSkew, nonces: NewMemoryNonceStore(), now: time.Now}
}

// WithNonceStore replaces the store used to reject replayed requests.
func (v *Verifier) WithNonceStore(ns domain.NonceStore) *Verifier {
	v.nonces = ns
	return v
}

// Verify returns the caller identity when sigHex is a valid signature by
// claimed over the request and the same signed request has not been seen
// inside the freshness window. Signature failures and replays wrap
// domain.ErrInvalidSigner; a failing nonce store is returned as is.
func (v *Verifier) Verify(ctx context.Context, method, path, claimed, timestamp, sigHex string, body []byte) (string, error) {
	addr, ok := NormalizeAddress(claimed)
	if !ok {
		return "", fmt.Errorf("auth: bad address %q: %w", claimed, domain.ErrInvalidSigner)
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return "", fmt.Errorf("auth: bad timestamp: %w", domain.ErrInvalidSigner)
	}
	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return "", fmt.Errorf("auth: timestamp outside %s window: %w", v.maxSkew, domain.ErrInvalidSigner)
	}

	digest := RequestDigest(method, path, ts, body)
	recovered, err := RecoverAddress(digest, sigHex)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, domain.ErrInvalidSigner)
	}
	if recovered != addr {
		return "", fmt.Errorf("auth: signed by %s, not %s: %w", recovered, addr, domain.ErrInvalidSigner)
	}

	// A timestamp is accepted from maxSkew before to maxSkew after it was
	// issued, so the digest must stay recorded for both halves.
	fresh, err := v.nonces.MarkUsed(ctx, addr+":"+hex.EncodeToString(digest), 2*v.maxSkew)
	if err != nil {
		return "", fmt.Errorf("auth: replay check: %w", err)
	}
	if !fresh {
		return "", fmt.Errorf("auth: request already used: %w", domain.ErrInvalidSigner)
	}
	return addr, nil
}
