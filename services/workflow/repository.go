package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/flow"
)

// Repository handles workflow persistence in PostgreSQL. Every query is
// scoped by workspace.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// InitSchema creates the workflow, execution and connection tables if they
// do not exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflows (
			id           UUID PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			name         TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			nodes        JSONB NOT NULL DEFAULT '[]',
			edges        JSONB NOT NULL DEFAULT '[]',
			variables    JSONB NOT NULL DEFAULT '{}',
			schedule     TEXT NOT NULL DEFAULT '',
			created_by   TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS workflows_workspace_idx ON workflows (workspace_id);

		CREATE TABLE IF NOT EXISTS workflow_executions (
			id           TEXT PRIMARY KEY,
			workflow_id  UUID NOT NULL REFERENCES workflows (id) ON DELETE CASCADE,
			workspace_id TEXT NOT NULL,
			user_id      TEXT NOT NULL DEFAULT '',
			trigger      TEXT NOT NULL,
			status       TEXT NOT NULL,
			report       JSONB,
			started_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at  TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS workflow_executions_workflow_idx
			ON workflow_executions (workspace_id, workflow_id, started_at DESC);

		CREATE TABLE IF NOT EXISTS integration_connections (
			workspace_id TEXT NOT NULL,
			integration  TEXT NOT NULL,
			access_token TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (workspace_id, integration)
		)
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Seed inserts the sample lead-welcome workflow if it does not already exist.
func (r *Repository) Seed(ctx context.Context) error {
	wf := sampleWorkflow()
	nodesJSON, edgesJSON, varsJSON, err := marshalGraph(&wf)
	if err != nil {
		return fmt.Errorf("marshal seed workflow: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO workflows (id, workspace_id, name, description, nodes, edges, variables)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, wf.ID, wf.WorkspaceID, wf.Name, wf.Description, nodesJSON, edgesJSON, varsJSON)
	if err != nil {
		return fmt.Errorf("seed workflow: %w", err)
	}
	return nil
}

// Create stores a new workflow. An empty ID is replaced by a fresh UUID;
// timestamps are set by the database.
func (r *Repository) Create(ctx context.Context, wf *Workflow) error {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	nodesJSON, edgesJSON, varsJSON, err := marshalGraph(wf)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO workflows (id, workspace_id, name, description, nodes, edges, variables, schedule, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, wf.ID, wf.WorkspaceID, wf.Name, wf.Description, nodesJSON, edgesJSON, varsJSON, wf.Schedule, wf.CreatedBy,
	).Scan(&wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

// Get retrieves a workflow by ID. Returns nil, nil if not found.
func (r *Repository) Get(ctx context.Context, workspaceID, id string) (*Workflow, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	row := r.db.QueryRow(ctx, `
		SELECT `+workflowColumns+`
		FROM workflows WHERE id = $1 AND workspace_id = $2
	`, id, workspaceID)

	wf, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return wf, nil
}

// List returns the workspace's workflows, most recently updated first.
func (r *Repository) List(ctx context.Context, workspaceID string) ([]Workflow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+workflowColumns+`
		FROM workflows WHERE workspace_id = $1
		ORDER BY updated_at DESC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return collectWorkflows(rows)
}

// ListScheduled returns every workflow, across workspaces, that has a
// schedule.
func (r *Repository) ListScheduled(ctx context.Context) ([]Workflow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+workflowColumns+`
		FROM workflows WHERE schedule <> ''
	`)
	if err != nil {
		return nil, fmt.Errorf("list scheduled workflows: %w", err)
	}
	return collectWorkflows(rows)
}

// Update replaces the definition of an existing workflow.
func (r *Repository) Update(ctx context.Context, wf *Workflow) error {
	if _, err := uuid.Parse(wf.ID); err != nil {
		return ErrWorkflowNotFound
	}
	nodesJSON, edgesJSON, varsJSON, err := marshalGraph(wf)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(ctx, `
		UPDATE workflows
		SET name = $3, description = $4, nodes = $5, edges = $6, variables = $7, schedule = $8, updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2
		RETURNING created_by, created_at, updated_at
	`, wf.ID, wf.WorkspaceID, wf.Name, wf.Description, nodesJSON, edgesJSON, varsJSON, wf.Schedule,
	).Scan(&wf.CreatedBy, &wf.CreatedAt, &wf.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrWorkflowNotFound
	}
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	return nil
}

// Delete removes a workflow and, by cascade, its executions.
func (r *Repository) Delete(ctx context.Context, workspaceID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrWorkflowNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

const workflowColumns = `id, workspace_id, name, description, nodes, edges, variables, schedule, created_by, created_at, updated_at`

func scanWorkflow(row pgx.Row) (*Workflow, error) {
	var wf Workflow
	var id uuid.UUID
	var nodesJSON, edgesJSON, varsJSON []byte

	err := row.Scan(&id, &wf.WorkspaceID, &wf.Name, &wf.Description, &nodesJSON, &edgesJSON, &varsJSON,
		&wf.Schedule, &wf.CreatedBy, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return nil, err
	}
	wf.ID = id.String()

	if err := json.Unmarshal(nodesJSON, &wf.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(edgesJSON, &wf.Edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges: %w", err)
	}
	if err := json.Unmarshal(varsJSON, &wf.Variables); err != nil {
		return nil, fmt.Errorf("unmarshal variables: %w", err)
	}
	return &wf, nil
}

func collectWorkflows(rows pgx.Rows) ([]Workflow, error) {
	defer rows.Close()

	out := []Workflow{}
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		out = append(out, *wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return out, nil
}

func marshalGraph(wf *Workflow) (nodes, edges, vars []byte, err error) {
	if wf.Nodes == nil {
		wf.Nodes = []flow.Node{}
	}
	if wf.Edges == nil {
		wf.Edges = []flow.Edge{}
	}
	if wf.Variables == nil {
		wf.Variables = map[string]any{}
	}
	if nodes, err = json.Marshal(wf.Nodes); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal nodes: %w", err)
	}
	if edges, err = json.Marshal(wf.Edges); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal edges: %w", err)
	}
	if vars, err = json.Marshal(wf.Variables); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal variables: %w", err)
	}
	return nodes, edges, vars, nil
}

// InitDB creates the schema and, when seed is set, the sample workflow.
// Called from main on startup.
func InitDB(ctx context.Context, pool *pgxpool.Pool, seed bool) error {
	repo := NewRepository(pool)
	if err := repo.InitSchema(ctx); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	if !seed {
		return nil
	}
	if err := repo.Seed(ctx); err != nil {
		return fmt.Errorf("seed sample workflow: %w", err)
	}
	return nil
}

const (
	sampleWorkflowID  = "550e8400-e29b-41d4-a716-446655440000"
	sampleWorkspaceID = "demo"
)

// sampleWorkflow welcomes a new lead by email, then records qualified
// leads in HubSpot and tells the sales channel.
func sampleWorkflow() Workflow {
	nodes := []flow.Node{
		{ID: "start", Type: flow.NodeTypeStart, Label: "New Lead"},
		{
			ID: "welcome_email", Type: flow.NodeTypeIntegration, Label: "Send Welcome Email", Integration: "gmail",
			Config: map[string]any{
				"action":  "send_email",
				"to":      "{{email}}",
				"subject": "Welcome to GalaxyCo, {{name}}",
				"body":    "Hi {{name}}, thanks for your interest in {{company}}.",
			},
		},
		{
			ID: "qualify", Type: flow.NodeTypeCondition, Label: "Qualified Lead?",
			Description: "Deals worth 1000 or more go to sales",
		},
		{
			ID: "create_contact", Type: flow.NodeTypeIntegration, Label: "Create HubSpot Contact", Integration: "hubspot",
			Config: map[string]any{
				"action":    "create_contact",
				"email":     "{{email}}",
				"firstname": "{{name}}",
				"company":   "{{company}}",
			},
		},
		{
			ID: "notify_sales", Type: flow.NodeTypeIntegration, Label: "Notify Sales", Integration: "slack",
			Config: map[string]any{
				"action":  "post_message",
				"channel": "#sales",
				"text":    "New qualified lead {{name}} ({{email}}), HubSpot contact {{create_contact.contactId}}",
			},
		},
		{ID: "end", Type: flow.NodeTypeEnd, Label: "Done"},
	}
	edges := []flow.Edge{
		{ID: "e1", Source: "start", Target: "welcome_email"},
		{ID: "e2", Source: "welcome_email", Target: "qualify"},
		{ID: "e3", Source: "qualify", Target: "create_contact", Label: "qualified", Condition: "dealValue >= 1000"},
		{ID: "e4", Source: "qualify", Target: "end", Label: "not qualified"},
		{ID: "e5", Source: "create_contact", Target: "notify_sales"},
		{ID: "e6", Source: "notify_sales", Target: "end"},
	}
	return Workflow{
		ID:          sampleWorkflowID,
		WorkspaceID: sampleWorkspaceID,
		Name:        "Lead Welcome Workflow",
		Description: "Welcome new leads and hand qualified ones to sales",
		Nodes:       flow.AutoLayout(nodes, edges),
		Edges:       edges,
		Variables:   map[string]any{"dealValue": 0},
	}
}
