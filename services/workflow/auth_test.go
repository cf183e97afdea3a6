package workflow

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestAuthenticator_IssueAndParse(t *testing.T) {
	a := NewAuthenticator(testSecret)

	token, err := a.Issue(Principal{WorkspaceID: "ws-1", UserID: "user-1"}, time.Hour)
	require.NoError(t, err)

	p, err := a.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, Principal{WorkspaceID: "ws-1", UserID: "user-1"}, p)
}

func TestAuthenticator_Parse(t *testing.T) {
	a := NewAuthenticator(testSecret)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		want    Principal
		wantErr bool
	}{
		{
			name:  "user_id claim wins over sub",
			token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"workspace_id": "ws-1", "user_id": "u-1", "sub": "u-2", "exp": exp}),
			want:  Principal{WorkspaceID: "ws-1", UserID: "u-1"},
		},
		{
			name:  "sub fallback",
			token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"workspace_id": "ws-1", "sub": "u-2", "exp": exp}),
			want:  Principal{WorkspaceID: "ws-1", UserID: "u-2"},
		},
		{
			name:    "missing workspace",
			token:   sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u-2", "exp": exp}),
			wantErr: true,
		},
		{
			name:    "wrong secret",
			token:   sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"workspace_id": "ws-1", "exp": exp}),
			wantErr: true,
		},
		{
			name:    "expired",
			token:   sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"workspace_id": "ws-1", "exp": time.Now().Add(-time.Minute).Unix()}),
			wantErr: true,
		},
		{
			name:    "unsigned",
			token:   sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"workspace_id": "ws-1"}),
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   "not.a.token",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := a.Parse(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestAuthenticator_Middleware(t *testing.T) {
	var got Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("bearer token", func(t *testing.T) {
		a := NewAuthenticator(testSecret)
		token, err := a.Issue(Principal{WorkspaceID: "ws-9", UserID: "u-9"}, time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		a.Middleware(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, Principal{WorkspaceID: "ws-9", UserID: "u-9"}, got)
	})

	t.Run("headers ignored when a secret is set", func(t *testing.T) {
		a := NewAuthenticator(testSecret)
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(workspaceHeader, "ws-1")
		w := httptest.NewRecorder()
		a.Middleware(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("dev mode headers", func(t *testing.T) {
		a := NewAuthenticator("")
		assert.True(t, a.DevMode())

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(workspaceHeader, "ws-1")
		req.Header.Set(userHeader, "u-1")
		w := httptest.NewRecorder()
		a.Middleware(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, Principal{WorkspaceID: "ws-1", UserID: "u-1"}, got)

		_, err := a.Issue(got, time.Minute)
		assert.Error(t, err)
	})
}
