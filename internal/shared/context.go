package shared

import (
	"context"
	"net/http"
	"strings"
)

// Permission is a named capability resolved for a principal.
type Permission struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Action      string `json:"action"`
}

// Grant is what the authorization gate hands to downstream handlers.
type Grant struct {
	PrincipalID int64
	SessionID   string
	Permissions []Permission
}

type grantContextKey struct{}

// ContextWithGrant stores the grant in context.
func ContextWithGrant(ctx context.Context, grant *Grant) context.Context {
	return context.WithValue(ctx, grantContextKey{}, grant)
}

// GrantFromContext extracts the grant from context.
func GrantFromContext(ctx context.Context) *Grant {
	grant, _ := ctx.Value(grantContextKey{}).(*Grant)
	return grant
}

// BearerToken returns the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
