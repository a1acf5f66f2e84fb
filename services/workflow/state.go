package workflow

import (
	"sync"
	"time"
)

// NodeStatus is the per-run lifecycle of a node: idle -> running -> success|failed.
type NodeStatus string

const (
	StatusIdle    NodeStatus = "idle"
	StatusRunning NodeStatus = "running"
	StatusSuccess NodeStatus = "success"
	StatusFailed  NodeStatus = "failed"
)

// NodeState is what the UI polls for a node during and after a run.
type NodeState struct {
	Status    NodeStatus `json:"status"`
	Output    any        `json:"output,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartTime time.Time  `json:"startTime,omitempty"`
	Duration  int64      `json:"duration,omitempty"` // milliseconds
}

// ExecutionState holds the node states of one run. It is created fresh for
// every run and is safe for the concurrent writers of a level.
type ExecutionState struct {
	mu    sync.RWMutex
	nodes map[string]NodeState
}

func NewExecutionState() *ExecutionState {
	return &ExecutionState{nodes: make(map[string]NodeState)}
}

// Get returns the state of a node; nodes never touched in this run are idle.
func (s *ExecutionState) Get(nodeID string) NodeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.nodes[nodeID]; ok {
		return st
	}
	return NodeState{Status: StatusIdle}
}

// Output returns the last output recorded for a node in this run.
func (s *ExecutionState) Output(nodeID string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.nodes[nodeID]
	if !ok || st.Output == nil {
		return nil, false
	}
	return st.Output, true
}

func (s *ExecutionState) markRunning(nodeID string, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[nodeID] = NodeState{Status: StatusRunning, StartTime: start}
}

func (s *ExecutionState) markSuccess(nodeID string, output any, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.nodes[nodeID]
	st.Status = StatusSuccess
	st.Output = output
	st.Error = ""
	st.Duration = d.Milliseconds()
	s.nodes[nodeID] = st
}

func (s *ExecutionState) markFailed(nodeID string, msg string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.nodes[nodeID]
	st.Status = StatusFailed
	st.Output = nil
	st.Error = msg
	st.Duration = d.Milliseconds()
	s.nodes[nodeID] = st
}

// seedOutputs copies every output still held by the previous state for nodes
// not in skip, as idle entries, so partial runs can read upstream values frozen
// at their last known value. Entries seeded by an earlier partial run carry over
// again.
func (s *ExecutionState) seedOutputs(prev *ExecutionState, skip map[string]bool) {
	if prev == nil {
		return
	}
	prev.mu.RLock()
	defer prev.mu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range prev.nodes {
		if skip[id] || st.Output == nil {
			continue
		}
		s.nodes[id] = NodeState{Status: StatusIdle, Output: st.Output}
	}
}

// Snapshot returns a copy of all node states.
func (s *ExecutionState) Snapshot() map[string]NodeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]NodeState, len(s.nodes))
	for id, st := range s.nodes {
		out[id] = st
	}
	return out
}
