package auth

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type contextKey string

const (
	// ContextKeyPrincipal is the context key for the authenticated caller address
	ContextKeyPrincipal contextKey = "principal"
	// ContextKeyMethod is the context key for how the caller authenticated
	ContextKeyMethod contextKey = "auth_method"
)

// Authentication methods.
const (
	MethodSignature = "eip191"
	MethodBearer    = "bearer"
)

// WithPrincipal adds the authenticated address and method to the context
func WithPrincipal(ctx context.Context, principal common.Address, method string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyPrincipal, principal)
	return context.WithValue(ctx, ContextKeyMethod, method)
}

// PrincipalFromContext retrieves the authenticated address from the context
func PrincipalFromContext(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(ContextKeyPrincipal).(common.Address)
	return addr, ok
}

// MethodFromContext retrieves how the caller authenticated
func MethodFromContext(ctx context.Context) string {
	m, _ := ctx.Value(ContextKeyMethod).(string)
	return m
}
