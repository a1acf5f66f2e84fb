package workflow

import "errors"

// this file errors.go contains the workflow related errors

var (
	// generic errors
	ErrInternalServerError  = errors.New("internal server error")
	ErrResponseDecodeFailed = errors.New("failed to decode response")
	ErrMarshalFailed        = errors.New("failed to marshal results")

	// Workflow-level errors
	ErrWorkflowNotFound      = errors.New("workflow not found")
	ErrInvalidWorkflowFormat = errors.New("invalid workflow format")
	ErrNodeNotFound          = errors.New("node not found")
	ErrRunInProgress         = errors.New("a run is already in progress")
	ErrEmptySelection        = errors.New("no nodes selected")
	ErrRunNotFound           = errors.New("run not found")

	// Connection validation errors, surfaced to the user as refusals
	ErrConnectionRejected = errors.New("connection rejected: incompatible handles")
	ErrCycleDetected      = errors.New("connection rejected: it would create a cycle")
	ErrDuplicateEdge      = errors.New("edge already exists")

	// ErrIncompletePartition means level scheduling left nodes unplaced, which can only
	// happen when the edge set is not acyclic.
	ErrIncompletePartition = errors.New("scheduler left nodes without a level")

	// Request validation errors
	ErrInvalidJSON = errors.New("invalid JSON")
)

func errorToJSON(err error) string {
	return `{"error":"` + err.Error() + `"}`
}
