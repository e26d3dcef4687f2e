package auth

import "context"

type callerKey struct{}

// WithCaller returns ctx carrying the authenticated caller address.
func WithCaller(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// CallerFrom returns the caller stored by WithCaller.
func CallerFrom(ctx context.Context) (string, bool) {
	addr, ok := ctx.Value(callerKey{}).(string)
	return addr, ok && addr != ""
}
