package audit

import "context"

// Origin describes the HTTP request behind an audited action.
type Origin struct {
	IP        string
	RequestID string
}

type originKey struct{}

// WithOrigin attaches o to ctx. Auth middleware sets it once per request.
func WithOrigin(ctx context.Context, o Origin) context.Context {
	if o == (Origin{}) {
		return ctx
	}
	return context.WithValue(ctx, originKey{}, o)
}

// OriginFrom returns the request origin, or the zero value outside a request.
func OriginFrom(ctx context.Context) Origin {
	o, _ := ctx.Value(originKey{}).(Origin)
	return o
}
