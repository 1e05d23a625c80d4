package auth

import "context"

// Requirement is the role constraint attached to a route.
type Requirement int

const (
	// RequireAuthenticated admits any principal with a valid token.
	RequireAuthenticated Requirement = iota
	// RequireAdmin admits only principals holding RoleAdmin.
	RequireAdmin
)

func (r Requirement) String() string {
	switch r {
	case RequireAuthenticated:
		return "authenticated"
	case RequireAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Authorize decides whether p satisfies req. A missing principal is always
// ErrUnauthenticated, checked before any role comparison.
func Authorize(p *Principal, req Requirement) error {
	if p == nil {
		return ErrUnauthenticated
	}
	switch req {
	case RequireAuthenticated:
		return nil
	case RequireAdmin:
		if p.IsAdmin() {
			return nil
		}
		return ErrForbidden
	default:
		return ErrForbidden
	}
}

type principalKey struct{}

// WithPrincipal stores p on the request context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, &p)
}

// PrincipalFromContext returns the request principal or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
