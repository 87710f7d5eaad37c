package authflow

import "context"

type clientIPContextKey struct{}
type clientTagContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. It is recorded on
// audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithClientTag attaches an opaque client fingerprint to ctx. The attack
// detector stores it alongside each attempt.
func WithClientTag(ctx context.Context, tag string) context.Context {
	return context.WithValue(ctx, clientTagContextKey{}, tag)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func clientTagFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	tag, _ := ctx.Value(clientTagContextKey{}).(string)
	return tag
}
