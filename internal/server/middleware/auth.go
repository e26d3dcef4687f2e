package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/alanyoungcy/marketledger/internal/auth"
	"github.com/alanyoungcy/marketledger/internal/domain"
)

// Request headers carrying the caller identity.
const (
	HeaderAddress   = "X-Ledger-Address"
	HeaderTimestamp = "X-Ledger-Timestamp"
	HeaderSignature = "X-Ledger-Signature"
)

// maxSignedBody caps the body read for signature verification.
const maxSignedBody = 64 << 10

// Identity returns middleware that attaches the caller address to the request
// context. With a verifier, the address must be backed by a signature over
// the method, path, timestamp and body, and a signed request is accepted
// once. Without one the address header is
// trusted as is, which is only meant for development. Requests without an
// address header pass through anonymously.
func Identity(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claimed := strings.TrimSpace(r.Header.Get(HeaderAddress))
			if claimed == "" {
				next.ServeHTTP(w, r)
				return
			}

			if verifier == nil {
				if addr, ok := auth.NormalizeAddress(claimed); ok {
					claimed = addr
				}
				noteCaller(r.Context(), claimed, false)
				next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), claimed)))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
			if err != nil {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			addr, err := verifier.Verify(
				r.Context(),
				r.Method,
				r.URL.Path,
				claimed,
				r.Header.Get(HeaderTimestamp),
				r.Header.Get(HeaderSignature),
				body,
			)
			if errors.Is(err, domain.ErrInvalidSigner) {
				writeUnauthorized(w, "invalid request signature")
				return
			}
			if err != nil {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"error":"signature check unavailable"}`))
				return
			}
			noteCaller(r.Context(), addr, true)
			next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), addr)))
		})
	}
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `","code":"InvalidSigner"}`))
}
