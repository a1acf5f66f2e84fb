package workflow

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

const storedWorkflow = `{
	"id": "wf-1",
	"name": "Poem",
	"nodes": [
		{"id": "A", "type": "textNode", "position": {"x": 0, "y": 0}, "data": {"text": "write about the sea"}},
		{"id": "B", "type": "llmNode", "position": {"x": 300, "y": 0}, "data": {"model": "gemini-2.5-flash", "connectedHandles": ["user_message"]}},
		{"id": "C", "type": "llmNode", "position": {"x": 600, "y": 0}, "data": {"model": "gemini-2.5-flash"}},
		{"id": "I", "type": "imageUploadNode", "position": {"x": 0, "y": 200}, "data": {"imageUrl": "https://cdn/sea.png"}}
	],
	"edges": [
		{"id": "e1", "source": "A", "sourceHandle": "output", "target": "B", "targetHandle": "user_message"}
	]
}`

type testServer struct {
	router      http.Handler
	repo        *MemoryRepository
	recorder    *MemoryRecorder
	queue       *RecordQueue
	coordinator *Coordinator
	exec        *recordingExecutor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := NewMemoryRepository()
	require.NoError(t, repo.UpdateWorkflowDefinitionByID(context.Background(), "wf-1", []byte(storedWorkflow)))

	recorder := NewMemoryRecorder()
	queue := NewRecordQueue(recorder, 16, discardLogger())
	queue.Start()
	t.Cleanup(queue.Stop)

	exec := &recordingExecutor{}
	coordinator := NewCoordinator(exec, queue, discardLogger())
	svc := NewService(repo, recorder, coordinator, 0)

	return &testServer{
		router:      NewRouter(svc),
		repo:        repo,
		recorder:    recorder,
		queue:       queue,
		coordinator: coordinator,
		exec:        exec,
	}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) stored(t *testing.T) WorkflowDefinition {
	t.Helper()
	b, err := s.repo.GetWorkflowDefinitionByID(context.Background(), "wf-1")
	require.NoError(t, err)
	var wf WorkflowDefinition
	require.NoError(t, json.Unmarshal(b, &wf))
	return wf
}

func TestHandleGetWorkflow(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		label      string
		path       string
		wantStatus int
		wantBody   string
	}{
		{label: "success: stored workflow", path: "/workflows/wf-1", wantStatus: http.StatusOK},
		{label: "error: unknown workflow", path: "/workflows/nope", wantStatus: http.StatusNotFound, wantBody: errorToJSON(ErrWorkflowNotFound)},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			rec := srv.do(http.MethodGet, tt.path, "")
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				require.JSONEq(t, tt.wantBody, rec.Body.String())
				return
			}

			var wf WorkflowDefinition
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wf))
			require.Equal(t, "Poem", wf.Name)
			require.Len(t, wf.Nodes, 4)
			require.Equal(t, &ImageUploadFields{ImageURL: "https://cdn/sea.png"}, wf.Nodes[3].Data.Fields)
		})
	}
}

func TestHandleGetWorkflowInvalidDefinition(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.repo.UpdateWorkflowDefinitionByID(context.Background(), "broken", []byte(`{"nodes": 7}`)))

	rec := srv.do(http.MethodGet, "/workflows/broken", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, errorToJSON(ErrInvalidWorkflowFormat), rec.Body.String())
}

func TestHandleExecuteWorkflow(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodPost, "/workflows/wf-1/execute", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, "wf-1", summary.WorkflowID)
	require.Equal(t, ScopeFull, summary.Scope)
	require.Equal(t, RunSuccess, summary.Status)
	require.Len(t, summary.Steps, 4)

	got, ok := srv.exec.callFor("B")
	require.True(t, ok)
	require.Equal(t, "write about the sea", got.inputs["user_message"])

	// runs are persisted off the request path
	srv.queue.Stop()
	rec = srv.do(http.MethodGet, "/workflows/wf-1/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []WorkflowRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	require.Equal(t, RunSuccess, runs[0].Status)
	require.Len(t, runs[0].NodeExecutions, 4)
}

func TestHandleExecuteWorkflowUsesPayloadGraph(t *testing.T) {
	srv := newTestServer(t)

	body := `{
		"nodes": [
			{"id": "T", "type": "textNode", "data": {"text": "live canvas"}},
			{"id": "L", "type": "llmNode", "data": {}}
		],
		"edges": [{"id": "x", "source": "T", "target": "L", "targetHandle": "system_prompt"}]
	}`
	rec := srv.do(http.MethodPost, "/workflows/wf-1/execute", body)
	require.Equal(t, http.StatusOK, rec.Code)

	got, ok := srv.exec.callFor("L")
	require.True(t, ok)
	require.Equal(t, map[string]any{"system_prompt": "live canvas", "model": DefaultLLMModel}, got.inputs)
	_, ok = srv.exec.callFor("A")
	require.False(t, ok)
}

func TestHandleExecuteErrors(t *testing.T) {
	tests := []struct {
		label      string
		method     string
		path       string
		body       string
		running    bool
		wantStatus int
		wantBody   string
	}{
		{
			label:      "run already in progress",
			method:     http.MethodPost,
			path:       "/workflows/wf-1/execute",
			running:    true,
			wantStatus: http.StatusConflict,
			wantBody:   errorToJSON(ErrRunInProgress),
		},
		{
			label:      "invalid body",
			method:     http.MethodPost,
			path:       "/workflows/wf-1/execute",
			body:       `not json`,
			wantStatus: http.StatusBadRequest,
			wantBody:   errorToJSON(ErrInvalidJSON),
		},
		{
			label:      "unknown workflow",
			method:     http.MethodPost,
			path:       "/workflows/nope/execute",
			wantStatus: http.StatusNotFound,
			wantBody:   errorToJSON(ErrWorkflowNotFound),
		},
		{
			label:      "unknown node",
			method:     http.MethodPost,
			path:       "/workflows/wf-1/nodes/Z/execute",
			wantStatus: http.StatusNotFound,
		},
		{
			label:      "empty selection",
			method:     http.MethodPost,
			path:       "/workflows/wf-1/execute-selected",
			body:       `{"nodeIds": []}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   errorToJSON(ErrEmptySelection),
		},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			srv := newTestServer(t)
			srv.coordinator.running.Store(tt.running)

			rec := srv.do(tt.method, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				require.JSONEq(t, tt.wantBody, rec.Body.String())
			}
			require.Empty(t, srv.exec.calls)
		})
	}
}

func TestHandleExecuteNode(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodPost, "/workflows/wf-1/nodes/B/execute", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, ScopeSingle, summary.Scope)
	require.Len(t, summary.Steps, 1)
	require.Equal(t, "B", summary.Steps[0].NodeID)
	// text nodes are read live even though A did not run
	require.Equal(t, "write about the sea", summary.Steps[0].Inputs["user_message"])
}

func TestHandleExecuteSelected(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodPost, "/workflows/wf-1/edges", `{"source": "B", "target": "C", "targetHandle": "user_message"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		label     string
		body      string
		wantNodes []string
	}{
		{label: "only the selection", body: `{"nodeIds": ["B"]}`, wantNodes: []string{"B"}},
		{label: "selection plus downstream", body: `{"nodeIds": ["B"], "includeDownstream": true}`, wantNodes: []string{"B", "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			rec := srv.do(http.MethodPost, "/workflows/wf-1/execute-selected", tt.body)
			require.Equal(t, http.StatusOK, rec.Code)

			var summary RunSummary
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
			require.Equal(t, ScopePartial, summary.Scope)

			var ran []string
			for _, s := range summary.Steps {
				ran = append(ran, s.NodeID)
			}
			require.Equal(t, tt.wantNodes, ran)
		})
	}
}

func TestHandleConnect(t *testing.T) {
	tests := []struct {
		label      string
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			label:      "success: image into llm images",
			body:       `{"source": "I", "target": "B", "targetHandle": "images"}`,
			wantStatus: http.StatusCreated,
		},
		{
			label:      "error: kind mismatch",
			body:       `{"source": "A", "target": "B", "targetHandle": "images"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   errorToJSON(ErrConnectionRejected),
		},
		{
			label:      "error: cycle",
			body:       `{"source": "B", "target": "A", "targetHandle": "input"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   errorToJSON(ErrCycleDetected),
		},
		{
			label:      "error: duplicate",
			body:       `{"source": "A", "sourceHandle": "output", "target": "B", "targetHandle": "user_message"}`,
			wantStatus: http.StatusConflict,
			wantBody:   errorToJSON(ErrDuplicateEdge),
		},
		{
			label:      "error: invalid body",
			body:       `not json`,
			wantStatus: http.StatusBadRequest,
			wantBody:   errorToJSON(ErrInvalidJSON),
		},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			srv := newTestServer(t)

			rec := srv.do(http.MethodPost, "/workflows/wf-1/edges", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code)

			wf := srv.stored(t)
			if tt.wantBody != "" {
				require.JSONEq(t, tt.wantBody, rec.Body.String())
				require.Len(t, wf.Edges, 1)
				return
			}

			var created Edge
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
			require.NotEmpty(t, created.ID)
			require.Equal(t, DefaultSourceHandle, created.SourceHandle)

			require.Len(t, wf.Edges, 2)
			require.Equal(t, []string{"images", "user_message"}, wf.Nodes[1].Data.ConnectedHandles)

			// the cached definition sees the new edge too
			rec = srv.do(http.MethodGet, "/workflows/wf-1", "")
			var cached WorkflowDefinition
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cached))
			require.Len(t, cached.Edges, 2)
		})
	}
}

func TestHandleDeleteNode(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodDelete, "/workflows/wf-1/nodes/A", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	wf := srv.stored(t)
	require.Len(t, wf.Nodes, 3)
	require.Empty(t, wf.Edges)
	require.Nil(t, wf.Nodes[0].Data.ConnectedHandles)

	rec = srv.do(http.MethodDelete, "/workflows/wf-1/nodes/A", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, errorToJSON(ErrNodeNotFound), rec.Body.String())
}

func TestHandleListRuns(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := srv.recorder.CreateRun(ctx, "wf-1", ScopeFull, RunSuccess, 0)
		require.NoError(t, err)
	}

	tests := []struct {
		label      string
		query      string
		wantStatus int
		wantRuns   int
	}{
		{label: "default limit", query: "", wantStatus: http.StatusOK, wantRuns: 3},
		{label: "explicit limit", query: "?limit=2", wantStatus: http.StatusOK, wantRuns: 2},
		{label: "limit above the cap", query: "?limit=1000", wantStatus: http.StatusOK, wantRuns: 3},
		{label: "zero limit", query: "?limit=0", wantStatus: http.StatusBadRequest},
		{label: "non numeric limit", query: "?limit=ten", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			rec := srv.do(http.MethodGet, "/workflows/wf-1/runs"+tt.query, "")
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var runs []WorkflowRun
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
			require.Len(t, runs, tt.wantRuns)
		})
	}

	rec := srv.do(http.MethodGet, "/workflows/empty/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandleGetState(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/workflows/wf-1/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"running": false, "nodes": {}}`, rec.Body.String())

	rec = srv.do(http.MethodPost, "/workflows/wf-1/execute", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(http.MethodGet, "/workflows/wf-1/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.False(t, got.Running)
	require.Len(t, got.Nodes, 4)
	require.Equal(t, StatusSuccess, got.Nodes["B"].Status)
	require.Equal(t, "out-B", got.Nodes["B"].Output)
}

func TestWriteRunResultErrors(t *testing.T) {
	tests := []struct {
		label      string
		err        error
		wantStatus int
	}{
		{label: "run already in progress", err: ErrRunInProgress, wantStatus: http.StatusConflict},
		{label: "unknown node", err: fmt.Errorf("%w: Z", ErrNodeNotFound), wantStatus: http.StatusNotFound},
		{label: "empty selection", err: ErrEmptySelection, wantStatus: http.StatusBadRequest},
		{label: "corrupt partition", err: ErrIncompletePartition, wantStatus: http.StatusInternalServerError},
	}

	s := &Service{}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.writeRunResult(rec, "wf-1", nil, tt.err)
			require.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandleExecuteWhileRunInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	exec := ExecutorFunc(func(ctx context.Context, nodeID string, nodeType NodeType, inputs map[string]any) (any, error) {
		if nodeID == "B" {
			close(started)
			<-release
		}
		return nodeID, nil
	})

	repo := NewMemoryRepository()
	require.NoError(t, repo.UpdateWorkflowDefinitionByID(context.Background(), "wf-1", []byte(storedWorkflow)))
	coordinator := NewCoordinator(exec, nil, discardLogger())
	router := NewRouter(NewService(repo, NewMemoryRecorder(), coordinator, 0))

	post := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		return rec
	}

	done := make(chan int, 1)
	go func() {
		done <- post("/workflows/wf-1/execute").Code
	}()
	<-started

	rec := post("/workflows/wf-1/nodes/C/execute")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.JSONEq(t, errorToJSON(ErrRunInProgress), rec.Body.String())

	close(release)
	require.Equal(t, http.StatusOK, <-done)
	require.False(t, coordinator.IsRunning())
}
