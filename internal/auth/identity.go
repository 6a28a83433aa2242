package auth

import "context"

// Method names how a caller authenticated.
type Method string

const (
	MethodJWT  Method = "jwt"
	MethodHMAC Method = "hmac"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	Subject string
	Role    Role
	Method  Method
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller stored by the auth middlewares. Anonymous
// requests report false.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.Subject != ""
}
