package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

func (s *Service) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := r.Context()

	slog.Debug("Returning workflow definition for id", "id", id)

	wf, err := s.loadDefinition(ctx, id)
	if err != nil {
		writeLoadError(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, wf)
}

// ExecutePayload optionally carries the live canvas graph. When Nodes is empty
// the stored definition is executed.
type ExecutePayload struct {
	Nodes []Node `json:"nodes,omitempty"`
	Edges []Edge `json:"edges,omitempty"`
}

type ExecuteSelectedPayload struct {
	ExecutePayload
	NodeIDs           []string `json:"nodeIds"`
	IncludeDownstream bool     `json:"includeDownstream"`
}

func (s *Service) HandleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Debug("Handling workflow execution for id", "id", id)

	var payload ExecutePayload
	wf, ok := s.prepareRun(w, r, id, &payload)
	if !ok {
		return
	}

	summary, err := s.coordinator.Run(runContext(r), wf.ID, wf.Nodes, wf.Edges, ScopeFull)
	s.writeRunResult(w, id, summary, err)
}

func (s *Service) HandleExecuteNode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, nodeID := vars["id"], vars["nodeId"]
	slog.Debug("Handling single node execution", "id", id, "node id", nodeID)

	var payload ExecutePayload
	wf, ok := s.prepareRun(w, r, id, &payload)
	if !ok {
		return
	}

	summary, err := s.coordinator.RunSingleNode(runContext(r), wf.ID, nodeID, wf.Nodes, wf.Edges)
	s.writeRunResult(w, id, summary, err)
}

func (s *Service) HandleExecuteSelected(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Debug("Handling selected nodes execution", "id", id)

	var payload ExecuteSelectedPayload
	wf, ok := s.prepareRun(w, r, id, &payload)
	if !ok {
		return
	}

	selected := payload.NodeIDs
	if payload.IncludeDownstream {
		selected = ExpandDownstream(selected, wf.Edges)
	}

	summary, err := s.coordinator.RunSelected(runContext(r), wf.ID, selected, wf.Nodes, wf.Edges)
	s.writeRunResult(w, id, summary, err)
}

// graphPayload is implemented by the execute request bodies.
type graphPayload interface {
	graph() ([]Node, []Edge)
}

func (p *ExecutePayload) graph() ([]Node, []Edge) { return p.Nodes, p.Edges }

// prepareRun decodes the request body into payload and returns the graph to run.
// It writes the error response itself and returns false on failure.
func (s *Service) prepareRun(w http.ResponseWriter, r *http.Request, id string, payload graphPayload) (*WorkflowDefinition, bool) {
	if s.coordinator.IsRunning() {
		http.Error(w, errorToJSON(ErrRunInProgress), http.StatusConflict)
		return nil, false
	}

	if err := json.NewDecoder(r.Body).Decode(payload); err != nil && !errors.Is(err, io.EOF) {
		slog.Error("Invalid JSON payload", "error", err)
		http.Error(w, errorToJSON(ErrInvalidJSON), http.StatusBadRequest)
		return nil, false
	}

	if nodes, edges := payload.graph(); len(nodes) > 0 {
		return &WorkflowDefinition{ID: id, Nodes: nodes, Edges: edges}, true
	}

	wf, err := s.loadDefinition(r.Context(), id)
	if err != nil {
		writeLoadError(w, id, err)
		return nil, false
	}
	return wf, true
}

func (s *Service) writeRunResult(w http.ResponseWriter, id string, summary *RunSummary, err error) {
	if err != nil {
		var status int
		switch {
		case errors.Is(err, ErrNodeNotFound):
			status = http.StatusNotFound
		case errors.Is(err, ErrEmptySelection):
			status = http.StatusBadRequest
		case errors.Is(err, ErrRunInProgress):
			status = http.StatusConflict
		default:
			slog.Error("Error executing workflow", "id", id, "error", err)
			http.Error(w, errorToJSON(ErrInternalServerError), http.StatusInternalServerError)
			return
		}
		http.Error(w, errorToJSON(err), status)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (s *Service) HandleConnect(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := r.Context()

	var edge Edge
	if err := json.NewDecoder(r.Body).Decode(&edge); err != nil {
		slog.Error("Invalid JSON payload", "error", err)
		http.Error(w, errorToJSON(ErrInvalidJSON), http.StatusBadRequest)
		return
	}

	wf, err := s.loadDefinition(ctx, id)
	if err != nil {
		writeLoadError(w, id, err)
		return
	}

	g := Graph{Nodes: wf.Nodes, Edges: wf.Edges}
	created, err := g.Connect(edge)
	if err != nil {
		slog.Debug("Connection refused", "id", id, "source", edge.Source, "target", edge.Target, "error", err)
		status := http.StatusUnprocessableEntity
		if errors.Is(err, ErrDuplicateEdge) {
			status = http.StatusConflict
		}
		http.Error(w, errorToJSON(err), status)
		return
	}

	wf.Nodes, wf.Edges = g.Nodes, g.Edges
	if err := s.saveDefinition(ctx, wf); err != nil {
		slog.Error("Error updating workflow", "id", id, "error", err)
		http.Error(w, errorToJSON(ErrInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (s *Service) HandleDeleteNode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, nodeID := vars["id"], vars["nodeId"]
	ctx := r.Context()

	wf, err := s.loadDefinition(ctx, id)
	if err != nil {
		writeLoadError(w, id, err)
		return
	}

	g := Graph{Nodes: wf.Nodes, Edges: wf.Edges}
	if err := g.RemoveNode(nodeID); err != nil {
		http.Error(w, errorToJSON(ErrNodeNotFound), http.StatusNotFound)
		return
	}

	wf.Nodes, wf.Edges = g.Nodes, g.Edges
	if err := s.saveDefinition(ctx, wf); err != nil {
		slog.Error("Error updating workflow", "id", id, "error", err)
		http.Error(w, errorToJSON(ErrInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, errorToJSON(errors.New("invalid limit")), http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.runs.ListRuns(r.Context(), id, limit)
	if err != nil {
		slog.Error("Error listing runs", "id", id, "error", err)
		http.Error(w, errorToJSON(ErrInternalServerError), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []WorkflowRun{}
	}

	writeJSON(w, http.StatusOK, runs)
}

type stateResponse struct {
	Running bool                 `json:"running"`
	Nodes   map[string]NodeState `json:"nodes"`
}

func (s *Service) HandleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		Running: s.coordinator.IsRunning(),
		Nodes:   s.coordinator.State(),
	})
}

// runContext detaches the run from the request: a client going away must not
// abort node calls that were already issued.
func runContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func writeLoadError(w http.ResponseWriter, id string, err error) {
	var status int
	var msg string

	switch {
	case errors.Is(err, ErrWorkflowNotFound):
		status = http.StatusNotFound
		msg = errorToJSON(ErrWorkflowNotFound)
	case errors.Is(err, ErrInvalidWorkflowFormat):
		status = http.StatusInternalServerError
		msg = errorToJSON(ErrInvalidWorkflowFormat)
	default:
		slog.Error("Error loading workflow", "id", id, "error", err)
		status = http.StatusInternalServerError
		msg = errorToJSON(ErrInternalServerError)
	}

	http.Error(w, msg, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal response", "error", err)
		http.Error(w, errorToJSON(ErrMarshalFailed), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(jsonBytes)
}
