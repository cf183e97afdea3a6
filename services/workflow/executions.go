package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/flow"
)

// ExecutionRepository stores execution history.
type ExecutionRepository struct {
	db *pgxpool.Pool
}

func NewExecutionRepository(pool *pgxpool.Pool) *ExecutionRepository {
	return &ExecutionRepository{db: pool}
}

// Start records a new execution in the running state.
func (r *ExecutionRepository) Start(ctx context.Context, rec *ExecutionRecord) error {
	rec.Status = StatusRunning
	err := r.db.QueryRow(ctx, `
		INSERT INTO workflow_executions (id, workflow_id, workspace_id, user_id, trigger, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING started_at
	`, rec.ID, rec.WorkflowID, rec.WorkspaceID, rec.UserID, string(rec.Trigger), string(rec.Status),
	).Scan(&rec.StartedAt)
	if err != nil {
		return fmt.Errorf("start execution: %w", err)
	}
	return nil
}

// Finish stores the final report and status of an execution.
func (r *ExecutionRepository) Finish(ctx context.Context, id string, report *flow.ExecutionReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE workflow_executions
		SET status = $2, report = $3, finished_at = $4
		WHERE id = $1
	`, id, string(report.Status()), reportJSON, report.FinishedAt())
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExecutionNotFound
	}
	return nil
}

// Get retrieves an execution by ID. Returns nil, nil if not found.
func (r *ExecutionRepository) Get(ctx context.Context, workspaceID, id string) (*ExecutionRecord, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+executionColumns+`
		FROM workflow_executions WHERE id = $1 AND workspace_id = $2
	`, id, workspaceID)

	rec, err := scanExecution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return rec, nil
}

// ListByWorkflow returns up to limit executions of a workflow, newest first.
func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workspaceID, workflowID string, limit int) ([]ExecutionRecord, error) {
	out := []ExecutionRecord{}
	if _, err := uuid.Parse(workflowID); err != nil {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+executionColumns+`
		FROM workflow_executions
		WHERE workspace_id = $1 AND workflow_id = $2
		ORDER BY started_at DESC
		LIMIT $3
	`, workspaceID, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return out, nil
}

const executionColumns = `id, workflow_id, workspace_id, user_id, trigger, status, report, started_at, finished_at`

func scanExecution(row pgx.Row) (*ExecutionRecord, error) {
	var rec ExecutionRecord
	var workflowID uuid.UUID
	var trigger, status string
	var reportJSON []byte
	var finishedAt *time.Time

	err := row.Scan(&rec.ID, &workflowID, &rec.WorkspaceID, &rec.UserID, &trigger, &status,
		&reportJSON, &rec.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	rec.WorkflowID = workflowID.String()
	rec.Trigger = Trigger(trigger)
	rec.Status = flow.Status(status)
	rec.FinishedAt = finishedAt

	if len(reportJSON) > 0 {
		rec.Report = &flow.ExecutionReport{}
		if err := json.Unmarshal(reportJSON, rec.Report); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
	}
	return &rec, nil
}
