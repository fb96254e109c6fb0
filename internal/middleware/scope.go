package middleware

import (
	"context"
	"net/http"

	"github.com/mtlprog/commandcenter/internal/domain"
)

type contextKey string

const (
	// ContextKeyScope is the key for storing the request scope in context.
	ContextKeyScope contextKey = "scope"
)

// ScopeMiddleware attaches the workspace scope to every request.
// The control plane serves a single workspace and actor resolved at bootstrap.
type ScopeMiddleware struct {
	scope domain.Scope
}

// NewScopeMiddleware creates a new ScopeMiddleware.
func NewScopeMiddleware(scope domain.Scope) *ScopeMiddleware {
	return &ScopeMiddleware{scope: scope}
}

// Attach adds the scope to the request context.
func (m *ScopeMiddleware) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithScope(r.Context(), m.scope)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithScope returns a copy of ctx carrying scope.
func WithScope(ctx context.Context, scope domain.Scope) context.Context {
	return context.WithValue(ctx, ContextKeyScope, scope)
}

// GetScopeFromContext retrieves the request scope from context.
func GetScopeFromContext(ctx context.Context) (domain.Scope, error) {
	scope, ok := ctx.Value(ContextKeyScope).(domain.Scope)
	if !ok || scope.WorkspaceID == "" {
		return domain.Scope{}, domain.ErrWorkspaceNotFound
	}
	return scope, nil
}
