package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
)

// Service wires the HTTP handlers to storage and the coordinator.
type Service struct {
	repo        WorkflowRepository
	runs        RunLister
	coordinator *Coordinator
	// parsed definitions, keyed by workflow id
	definitions *cache.Cache
}

// NewService builds a Service. A zero cacheTTL disables expiry of cached definitions.
func NewService(repo WorkflowRepository, runs RunLister, coordinator *Coordinator, cacheTTL time.Duration) *Service {
	expiry := cache.NoExpiration
	if cacheTTL > 0 {
		expiry = cacheTTL
	}
	return &Service{
		repo:        repo,
		runs:        runs,
		coordinator: coordinator,
		definitions: cache.New(expiry, 10*time.Minute),
	}
}

// NewRouter registers the workflow routes.
func NewRouter(s *Service) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/workflows/{id}").Subrouter()
	api.HandleFunc("", s.HandleGetWorkflow).Methods(http.MethodGet)
	api.HandleFunc("/execute", s.HandleExecuteWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/execute-selected", s.HandleExecuteSelected).Methods(http.MethodPost)
	api.HandleFunc("/nodes/{nodeId}/execute", s.HandleExecuteNode).Methods(http.MethodPost)
	api.HandleFunc("/nodes/{nodeId}", s.HandleDeleteNode).Methods(http.MethodDelete)
	api.HandleFunc("/edges", s.HandleConnect).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.HandleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/state", s.HandleGetState).Methods(http.MethodGet)
	return r
}

// loadDefinition returns the parsed definition of a workflow, from cache when possible.
func (s *Service) loadDefinition(ctx context.Context, id string) (*WorkflowDefinition, error) {
	if cached, ok := s.definitions.Get(id); ok {
		wf := cached.(WorkflowDefinition)
		return cloneDefinition(wf), nil
	}

	definitionBytes, err := s.repo.GetWorkflowDefinitionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var wf WorkflowDefinition
	if err := json.Unmarshal(definitionBytes, &wf); err != nil {
		slog.Error("Invalid workflow format", "id", id, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidWorkflowFormat, err)
	}
	if wf.ID == "" {
		wf.ID = id
	}

	s.definitions.SetDefault(id, *cloneDefinition(wf))
	return &wf, nil
}

// saveDefinition persists the definition and refreshes the cache.
func (s *Service) saveDefinition(ctx context.Context, wf *WorkflowDefinition) error {
	definitionBytes, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMarshalFailed, err)
	}
	if err := s.repo.UpdateWorkflowDefinitionByID(ctx, wf.ID, definitionBytes); err != nil {
		s.definitions.Delete(wf.ID)
		return err
	}
	s.definitions.SetDefault(wf.ID, *cloneDefinition(*wf))
	return nil
}

// cloneDefinition copies the node and edge slices so callers can edit freely.
func cloneDefinition(wf WorkflowDefinition) *WorkflowDefinition {
	wf.Nodes = append([]Node(nil), wf.Nodes...)
	for i := range wf.Nodes {
		wf.Nodes[i].Data.ConnectedHandles = append([]string(nil), wf.Nodes[i].Data.ConnectedHandles...)
	}
	wf.Edges = append([]Edge(nil), wf.Edges...)
	return &wf
}
