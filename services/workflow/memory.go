package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps workflow definitions in process. Used with storage=memory
// and in tests.
type MemoryRepository struct {
	mu          sync.RWMutex
	definitions map[string][]byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{definitions: make(map[string][]byte)}
}

func (r *MemoryRepository) GetWorkflowDefinitionByID(_ context.Context, id string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return append([]byte(nil), def...), nil
}

// UpdateWorkflowDefinitionByID stores the definition, creating it when missing.
func (r *MemoryRepository) UpdateWorkflowDefinitionByID(_ context.Context, id string, newDefinition []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[id] = append([]byte(nil), newDefinition...)
	return nil
}

// MemoryRecorder keeps run history in process.
type MemoryRecorder struct {
	mu   sync.RWMutex
	runs map[string]*WorkflowRun
	seq  []string
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{runs: make(map[string]*WorkflowRun)}
}

func (r *MemoryRecorder) CreateRun(_ context.Context, workflowID string, scope RunScope, status RunStatus, duration time.Duration) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	r.runs[id] = &WorkflowRun{
		ID:         id,
		WorkflowID: workflowID,
		Scope:      scope,
		Status:     status,
		Duration:   duration.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	r.seq = append(r.seq, id)
	return id, nil
}

func (r *MemoryRecorder) AppendNodeExecution(_ context.Context, runID string, rec NodeExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	rec.RunID = runID
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	run.NodeExecutions = append(run.NodeExecutions, rec)
	return nil
}

// ListRuns returns up to limit runs of a workflow, most recent first.
func (r *MemoryRecorder) ListRuns(_ context.Context, workflowID string, limit int) ([]WorkflowRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []WorkflowRun
	for i := len(r.seq) - 1; i >= 0; i-- {
		run := r.runs[r.seq[i]]
		if run.WorkflowID != workflowID {
			continue
		}
		cp := *run
		cp.NodeExecutions = append([]NodeExecution(nil), run.NodeExecutions...)
		out = append(out, cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
