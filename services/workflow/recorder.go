package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunScope says which part of the graph a run covered.
type RunScope string

const (
	ScopeFull    RunScope = "full"
	ScopePartial RunScope = "partial"
	ScopeSingle  RunScope = "single"
)

type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// WorkflowRun is the persisted summary of one run.
type WorkflowRun struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflowId"`
	Scope          RunScope        `json:"scope"`
	Status         RunStatus       `json:"status"`
	Duration       int64           `json:"duration"` // milliseconds
	CreatedAt      time.Time       `json:"createdAt"`
	NodeExecutions []NodeExecution `json:"nodeExecutions"`
}

// NodeExecution is the immutable audit record of one node invocation.
type NodeExecution struct {
	ID        string         `json:"id"`
	RunID     string         `json:"runId"`
	NodeID    string         `json:"nodeId"`
	NodeType  NodeType       `json:"nodeType"`
	Status    NodeStatus     `json:"status"`
	Inputs    map[string]any `json:"inputs"`
	Outputs   any            `json:"outputs,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  int64          `json:"duration"` // milliseconds
	CreatedAt time.Time      `json:"createdAt"`
}

// RunRecorder persists runs. Callers treat it as best effort.
type RunRecorder interface {
	CreateRun(ctx context.Context, workflowID string, scope RunScope, status RunStatus, duration time.Duration) (string, error)
	AppendNodeExecution(ctx context.Context, runID string, rec NodeExecution) error
}

// RunLister reads run history back, most recent first.
type RunLister interface {
	ListRuns(ctx context.Context, workflowID string, limit int) ([]WorkflowRun, error)
}

// RunRecord is everything the coordinator hands over once a run has finished.
type RunRecord struct {
	WorkflowID string
	Scope      RunScope
	Status     RunStatus
	Duration   time.Duration
	Executions []NodeExecution
}

// RunSink accepts finished runs for persistence.
type RunSink interface {
	Submit(rec RunRecord) bool
}

// persistRun writes one run record and its node executions in order. A failed
// append does not stop the remaining ones.
func persistRun(ctx context.Context, recorder RunRecorder, rec RunRecord) error {
	runID, err := recorder.CreateRun(ctx, rec.WorkflowID, rec.Scope, rec.Status, rec.Duration)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	var errs []error
	for _, exec := range rec.Executions {
		exec.RunID = runID
		if exec.ID == "" {
			exec.ID = uuid.NewString()
		}
		if err := recorder.AppendNodeExecution(ctx, runID, exec); err != nil {
			errs = append(errs, fmt.Errorf("append node execution %s: %w", exec.NodeID, err))
		}
	}
	return errors.Join(errs...)
}

// RecordQueue persists finished runs on a background goroutine. Submissions never
// block the caller: a full queue drops the record and logs it.
type RecordQueue struct {
	recorder RunRecorder
	logger   *slog.Logger
	timeout  time.Duration
	tasks    chan RunRecord
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewRecordQueue(recorder RunRecorder, capacity int, logger *slog.Logger) *RecordQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &RecordQueue{
		recorder: recorder,
		logger:   logger,
		timeout:  10 * time.Second,
		tasks:    make(chan RunRecord, capacity),
		stop:     make(chan struct{}),
	}
}

func (q *RecordQueue) Start() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		for {
			select {
			case rec := <-q.tasks:
				q.handle(rec)
			case <-q.stop:
				q.drain()
				q.logger.Info("Stopping run recorder queue")
				return
			}
		}
	}()
}

// Submit enqueues a finished run, returning false if it had to be dropped.
func (q *RecordQueue) Submit(rec RunRecord) bool {
	select {
	case q.tasks <- rec:
		return true
	default:
		q.logger.Warn("Run recorder queue full, dropping run", "workflow id", rec.WorkflowID, "scope", rec.Scope)
		return false
	}
}

// Stop persists whatever is still queued and waits for the worker to exit.
func (q *RecordQueue) Stop() {
	q.stopOnce.Do(func() { close(q.stop) })
	q.wg.Wait()
}

func (q *RecordQueue) drain() {
	for {
		select {
		case rec := <-q.tasks:
			q.handle(rec)
		default:
			return
		}
	}
}

func (q *RecordQueue) handle(rec RunRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	if err := persistRun(ctx, q.recorder, rec); err != nil {
		q.logger.Error("Failed to persist run", "workflow id", rec.WorkflowID, "error", err)
		return
	}
	q.logger.Debug("Run persisted", "workflow id", rec.WorkflowID, "nodes", len(rec.Executions))
}
