package principal

import (
	"context"
)

// Principal is the authenticated caller as resolved by the identity layer.
// The portal never stores credentials; it only carries this triple around.
type Principal struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type contextKey string

const principalKey contextKey = "principal"

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// GetUserID returns the caller's id or "" when the request is unauthenticated.
func GetUserID(ctx context.Context) string {
	if p, ok := FromContext(ctx); ok {
		return p.ID
	}
	return ""
}
