package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	WorkspaceID string
	UserID      string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// mustPrincipal is for handlers behind Authenticator.Middleware.
func mustPrincipal(r *http.Request) Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}

const (
	workspaceHeader = "X-Workspace-ID"
	userHeader      = "X-User-ID"
)

// Authenticator resolves the workspace and user of each request from an
// HS256 bearer token. Without a secret it trusts the X-Workspace-ID and
// X-User-ID headers instead, which is only suitable for development.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// DevMode reports whether requests are authenticated by header.
func (a *Authenticator) DevMode() bool { return len(a.secret) == 0 }

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.authenticate(r)
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (Principal, error) {
	if a.DevMode() {
		p := Principal{
			WorkspaceID: strings.TrimSpace(r.Header.Get(workspaceHeader)),
			UserID:      strings.TrimSpace(r.Header.Get(userHeader)),
		}
		if p.WorkspaceID == "" {
			return Principal{}, fmt.Errorf("missing %s header", workspaceHeader)
		}
		return p, nil
	}

	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return Principal{}, errors.New("missing bearer token")
	}
	return a.Parse(strings.TrimPrefix(header, "Bearer "))
}

// Parse validates a token and extracts its principal. The workspace_id
// claim is required; the user comes from user_id, falling back to sub.
func (a *Authenticator) Parse(tokenStr string) (Principal, error) {
	token, err := jwt.Parse(tokenStr, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Principal{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, errors.New("invalid token claims")
	}
	p := Principal{}
	p.WorkspaceID, _ = claims["workspace_id"].(string)
	if p.WorkspaceID == "" {
		return Principal{}, errors.New("token has no workspace_id claim")
	}
	p.UserID, _ = claims["user_id"].(string)
	if p.UserID == "" {
		p.UserID, _ = claims.GetSubject()
	}
	return p, nil
}

// Issue signs a token for p that expires after ttl.
func (a *Authenticator) Issue(p Principal, ttl time.Duration) (string, error) {
	if a.DevMode() {
		return "", errors.New("no signing secret configured")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"workspace_id": p.WorkspaceID,
		"sub":          p.UserID,
		"iat":          now.Unix(),
		"exp":          now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
