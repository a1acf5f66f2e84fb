package workflow

import (
	"context"
	"fmt"
	"time"
)

// this is done so that it can be overridden to return fixed times in unit tests.
var nowFn = time.Now

// processNode resolves the inputs of a single node, invokes the executor and
// records the outcome in the run state. It never returns an error: a failing
// node is reported through the returned step.
func (c *Coordinator) processNode(ctx context.Context, state *ExecutionState, node Node, nodes []Node, edges []Edge) NodeExecution {
	inputs := ResolveInputs(node.ID, nodes, edges, state)

	// keep track of node processing time
	startTime := nowFn()
	state.markRunning(node.ID, startTime)

	output, err := c.invoke(ctx, node, inputs)
	duration := nowFn().Sub(startTime)

	step := NodeExecution{
		NodeID:    node.ID,
		NodeType:  node.Type,
		Inputs:    inputs,
		Duration:  duration.Milliseconds(),
		CreatedAt: startTime,
	}

	if err != nil {
		c.logger.Warn("Node failed", "node id", node.ID, "type", node.Type, "error", err)
		state.markFailed(node.ID, err.Error(), duration)
		step.Status = StatusFailed
		step.Error = err.Error()
		return step
	}

	c.logger.Debug("Node succeeded", "node id", node.ID, "type", node.Type, "duration", step.Duration)
	state.markSuccess(node.ID, output, duration)
	step.Status = StatusSuccess
	step.Outputs = output
	return step
}

// invoke calls the executor, turning a panic into a node failure so it cannot
// unwind the rest of the level.
func (c *Coordinator) invoke(ctx context.Context, node Node, inputs map[string]any) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("node executor panicked: %v", r)
		}
	}()
	return c.executor.Execute(ctx, node.ID, node.Type, inputs)
}
