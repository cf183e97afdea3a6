package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/integrations"
)

// ConnectionRepository stores the access tokens a workspace has connected
// for each integration. It implements integrations.TokenSource.
type ConnectionRepository struct {
	db *pgxpool.Pool
}

func NewConnectionRepository(pool *pgxpool.Pool) *ConnectionRepository {
	return &ConnectionRepository{db: pool}
}

// Upsert connects or reconnects an integration for a workspace.
func (r *ConnectionRepository) Upsert(ctx context.Context, workspaceID, integration, token string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO integration_connections (workspace_id, integration, access_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (workspace_id, integration)
		DO UPDATE SET access_token = EXCLUDED.access_token, updated_at = NOW()
	`, workspaceID, integration, token)
	if err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}
	return nil
}

// Delete disconnects an integration. Deleting a missing connection is not an error.
func (r *ConnectionRepository) Delete(ctx context.Context, workspaceID, integration string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM integration_connections WHERE workspace_id = $1 AND integration = $2
	`, workspaceID, integration)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

// Connected returns the names of the integrations a workspace has connected.
func (r *ConnectionRepository) Connected(ctx context.Context, workspaceID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT integration FROM integration_connections
		WHERE workspace_id = $1 ORDER BY integration
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return names, nil
}

func (r *ConnectionRepository) Token(ctx context.Context, workspaceID, integration string) (string, error) {
	var token string
	err := r.db.QueryRow(ctx, `
		SELECT access_token FROM integration_connections
		WHERE workspace_id = $1 AND integration = $2
	`, workspaceID, integration).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w for %s", integrations.ErrNoToken, integration)
	}
	if err != nil {
		return "", fmt.Errorf("get connection token: %w", err)
	}
	return token, nil
}
