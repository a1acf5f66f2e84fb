package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// RunSummary is the consolidated outcome reported to the caller once a run ends.
type RunSummary struct {
	WorkflowID string          `json:"workflowId"`
	Scope      RunScope        `json:"scope"`
	Status     RunStatus       `json:"status"`
	StartedAt  time.Time       `json:"startedAt"`
	Duration   int64           `json:"duration"` // milliseconds
	Steps      []NodeExecution `json:"steps"`
}

// Coordinator drives runs: it schedules levels, fans each level out to the node
// executor and hands the finished run to the sink.
//
// Only one run executes at a time: a run started while another is in flight
// returns ErrRunInProgress.
type Coordinator struct {
	executor NodeExecutor
	sink     RunSink
	logger   *slog.Logger

	running atomic.Bool

	mu    sync.RWMutex
	state *ExecutionState
}

// NewCoordinator builds a coordinator. sink may be nil, in which case runs are
// not persisted.
func NewCoordinator(executor NodeExecutor, sink RunSink, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		executor: executor,
		sink:     sink,
		logger:   logger,
		state:    NewExecutionState(),
	}
}

func (c *Coordinator) IsRunning() bool {
	return c.running.Load()
}

// State returns the node states of the current or most recent run.
func (c *Coordinator) State() map[string]NodeState {
	return c.currentState().Snapshot()
}

func (c *Coordinator) currentState() *ExecutionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// runPlan describes one run: which nodes execute, in which levels, and which
// graph their inputs are resolved against.
type runPlan struct {
	workflowID string
	scope      RunScope

	nodes []Node
	edges []Edge

	// graph used for input resolution; usually the same as nodes/edges
	contextNodes []Node
	contextEdges []Edge

	// carry outputs of the previous run into the fresh state
	carryOver bool
}

// Run executes every node of the given graph, level by level. The nodes and
// edges are a snapshot; later edits are not observed. Errors are returned only
// for a run already in flight or a corrupted level partition, node failures are
// reported in the summary.
func (c *Coordinator) Run(ctx context.Context, workflowID string, nodes []Node, edges []Edge, scope RunScope) (*RunSummary, error) {
	return c.execute(ctx, runPlan{
		workflowID:   workflowID,
		scope:        scope,
		nodes:        nodes,
		edges:        edges,
		contextNodes: nodes,
		contextEdges: edges,
	})
}

// RunSingleNode executes one node without scheduling its dependencies. Its
// inputs are still resolved against the whole graph, upstream outputs taken from
// the previous run.
func (c *Coordinator) RunSingleNode(ctx context.Context, workflowID, nodeID string, nodes []Node, edges []Edge) (*RunSummary, error) {
	node, ok := nodeIndex(nodes)[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	return c.execute(ctx, runPlan{
		workflowID:   workflowID,
		scope:        ScopeSingle,
		nodes:        []Node{node},
		contextNodes: nodes,
		contextEdges: edges,
		carryOver:    true,
	})
}

// RunSelected executes the selected nodes. Scheduling only sees edges whose
// endpoints are both selected; an input crossing the selection boundary resolves
// to the upstream output of the previous run.
func (c *Coordinator) RunSelected(ctx context.Context, workflowID string, selected []string, nodes []Node, edges []Edge) (*RunSummary, error) {
	if len(selected) == 0 {
		return nil, ErrEmptySelection
	}
	subNodes, subEdges := SubGraph(selected, nodes, edges)
	if len(subNodes) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNodeNotFound, selected)
	}
	return c.execute(ctx, runPlan{
		workflowID:   workflowID,
		scope:        ScopePartial,
		nodes:        subNodes,
		edges:        subEdges,
		contextNodes: nodes,
		contextEdges: edges,
		carryOver:    true,
	})
}

func (c *Coordinator) execute(ctx context.Context, p runPlan) (*RunSummary, error) {
	logger := c.logger.With("workflow id", p.workflowID, "scope", p.scope)

	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer c.running.Store(false)

	state := NewExecutionState()
	if p.carryOver {
		skip := make(map[string]bool, len(p.nodes))
		for _, n := range p.nodes {
			skip[n.ID] = true
		}
		state.seedOutputs(c.currentState(), skip)
	}
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	startTime := nowFn()

	levels, err := ScheduleLevels(p.nodes, p.edges)
	if err != nil {
		logger.Error("Invalid level partition", "error", err)
		return nil, err
	}
	logger.Debug("Run scheduled", "levels", len(levels), "nodes", len(p.nodes))

	index := nodeIndex(p.nodes)
	steps := make([]NodeExecution, 0, len(p.nodes))
	for i, level := range levels {
		logger.Debug("Running level", "level", i, "nodes", level)

		// fan out, then wait for every node of the level whatever its outcome
		results := make([]NodeExecution, len(level))
		var wg sync.WaitGroup
		for j, id := range level {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[j] = c.processNode(ctx, state, index[id], p.contextNodes, p.contextEdges)
			}()
		}
		wg.Wait()

		steps = append(steps, results...)
	}

	status := RunSuccess
	for _, step := range steps {
		if step.Status == StatusFailed {
			status = RunFailed
			break
		}
	}

	duration := nowFn().Sub(startTime)
	logger.Info("Run finished", "status", status, "duration", duration.Milliseconds())

	if c.sink != nil {
		c.sink.Submit(RunRecord{
			WorkflowID: p.workflowID,
			Scope:      p.scope,
			Status:     status,
			Duration:   duration,
			Executions: steps,
		})
	}

	return &RunSummary{
		WorkflowID: p.workflowID,
		Scope:      p.scope,
		Status:     status,
		StartedAt:  startTime,
		Duration:   duration.Milliseconds(),
		Steps:      steps,
	}, nil
}
