package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// This file repository.go contains workflow related DB methods.
// Note: The queries use raw SQL and manual scanning, see db/schema.sql for the tables.

// DB is the part of *pgxpool.Pool the repositories need.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WorkflowRepository loads and stores raw workflow definitions.
type WorkflowRepository interface {
	GetWorkflowDefinitionByID(ctx context.Context, id string) ([]byte, error)
	UpdateWorkflowDefinitionByID(ctx context.Context, id string, newDefinition []byte) error
}

type PostgresRepository struct {
	db DB
}

func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetWorkflowDefinitionByID returns a workflow definition by id.
func (r *PostgresRepository) GetWorkflowDefinitionByID(ctx context.Context, id string) ([]byte, error) {
	var definition []byte

	err := r.db.QueryRow(ctx, `
		SELECT definition
		FROM workflows
		WHERE definition->>'id' = $1
	`, id).Scan(&definition)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %w", ErrWorkflowNotFound, err)
	}
	if err != nil {
		return nil, err
	}

	return definition, nil
}

// UpdateWorkflowDefinitionByID is a helper method to update a workflow definition by id.
func (r *PostgresRepository) UpdateWorkflowDefinitionByID(ctx context.Context, id string, newDefinition []byte) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE workflows
		SET definition = $1,
		    updated_at = now()
		WHERE definition->>'id' = $2
	`, newDefinition, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

// selectNodeExecutionsSQL reads node executions back in insertion order. Nodes of
// one level share a start time, so only seq keeps the append order.
const selectNodeExecutionsSQL = `
	SELECT id, run_id, node_id, node_type, status, inputs, outputs, error, duration_ms, created_at
	FROM node_executions
	WHERE run_id = ANY($1)
	ORDER BY seq
`

// PostgresRecorder stores run history in workflow_runs and node_executions.
type PostgresRecorder struct {
	db DB
}

func NewPostgresRecorder(db DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) CreateRun(ctx context.Context, workflowID string, scope RunScope, status RunStatus, duration time.Duration) (string, error) {
	id := uuid.NewString()
	_, err := r.db.Exec(ctx, `
		INSERT INTO workflow_runs (id, workflow_id, scope, status, duration_ms)
		VALUES ($1, $2, $3, $4, $5)
	`, id, workflowID, string(scope), string(status), duration.Milliseconds())
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *PostgresRecorder) AppendNodeExecution(ctx context.Context, runID string, rec NodeExecution) error {
	inputs, err := json.Marshal(rec.Inputs)
	if err != nil {
		return fmt.Errorf("encode inputs: %w", err)
	}
	outputs, err := json.Marshal(rec.Outputs)
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}

	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO node_executions
			(id, run_id, node_id, node_type, status, inputs, outputs, error, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, id, runID, rec.NodeID, string(rec.NodeType), string(rec.Status), inputs, outputs, rec.Error, rec.Duration, createdAt)
	return err
}

// ListRuns returns the latest runs of a workflow with their node executions.
func (r *PostgresRecorder) ListRuns(ctx context.Context, workflowID string, limit int) ([]WorkflowRun, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, workflow_id, scope, status, duration_ms, created_at
		FROM workflow_runs
		WHERE workflow_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, workflowID, limit)
	if err != nil {
		return nil, err
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (WorkflowRun, error) {
		var run WorkflowRun
		err := row.Scan(&run.ID, &run.WorkflowID, &run.Scope, &run.Status, &run.Duration, &run.CreatedAt)
		return run, err
	})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return runs, nil
	}

	ids := make([]string, len(runs))
	byID := make(map[string]int, len(runs))
	for i, run := range runs {
		ids[i] = run.ID
		byID[run.ID] = i
	}

	rows, err = r.db.Query(ctx, selectNodeExecutionsSQL, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			exec            NodeExecution
			inputs, outputs []byte
		)
		if err := rows.Scan(&exec.ID, &exec.RunID, &exec.NodeID, &exec.NodeType, &exec.Status,
			&inputs, &outputs, &exec.Error, &exec.Duration, &exec.CreatedAt); err != nil {
			return nil, err
		}
		if len(inputs) > 0 {
			if err := json.Unmarshal(inputs, &exec.Inputs); err != nil {
				return nil, fmt.Errorf("decode inputs of %s: %w", exec.ID, err)
			}
		}
		if len(outputs) > 0 {
			if err := json.Unmarshal(outputs, &exec.Outputs); err != nil {
				return nil, fmt.Errorf("decode outputs of %s: %w", exec.ID, err)
			}
		}
		i := byID[exec.RunID]
		runs[i].NodeExecutions = append(runs[i].NodeExecutions, exec)
	}
	return runs, rows.Err()
}
