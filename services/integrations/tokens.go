package integrations

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoToken is returned when no access token is available for an
// integration.
var ErrNoToken = errors.New("no access token")

// TokenSource resolves the access token a workspace uses for an integration.
type TokenSource interface {
	Token(ctx context.Context, workspaceID, integration string) (string, error)
}

// StaticTokens serves the same token to every workspace, keyed by
// integration name.
type StaticTokens map[string]string

func (s StaticTokens) Token(_ context.Context, _ string, integration string) (string, error) {
	if t := s[integration]; t != "" {
		return t, nil
	}
	return "", fmt.Errorf("%w for %s", ErrNoToken, integration)
}

// TokenChain tries each source in order and returns the first token found.
// Errors other than ErrNoToken stop the search.
type TokenChain []TokenSource

func (c TokenChain) Token(ctx context.Context, workspaceID, integration string) (string, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		t, err := src.Token(ctx, workspaceID, integration)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrNoToken) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w for %s", ErrNoToken, integration)
}
