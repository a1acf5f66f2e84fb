package workflow

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func textNode(id, text string) Node {
	return Node{ID: id, Type: TextNodeType, Data: NodeData{Fields: &TextFields{Text: text}}}
}

func imageNode(id, url string) Node {
	return Node{ID: id, Type: ImageUploadNodeType, Data: NodeData{Fields: &ImageUploadFields{ImageURL: url}}}
}

func videoNode(id, url string) Node {
	return Node{ID: id, Type: VideoUploadNodeType, Data: NodeData{Fields: &VideoUploadFields{VideoURL: url}}}
}

func llmNode(id, model string) Node {
	return Node{ID: id, Type: LLMNodeType, Data: NodeData{Fields: &LLMFields{Model: model}}}
}

func cropNode(id string, x, y, w, h float64) Node {
	return Node{ID: id, Type: CropImageNodeType, Data: NodeData{Fields: &CropImageFields{
		XPercent: x, YPercent: y, WidthPercent: w, HeightPercent: h,
	}}}
}

func frameNode(id, timestamp string) Node {
	return Node{ID: id, Type: ExtractFrameNodeType, Data: NodeData{Fields: &ExtractFrameFields{Timestamp: timestamp}}}
}

func edge(source, target, targetHandle string) Edge {
	return Edge{ID: source + "-" + target + "-" + targetHandle, Source: source, SourceHandle: DefaultSourceHandle, Target: target, TargetHandle: targetHandle}
}

// call is one invocation seen by recordingExecutor.
type call struct {
	nodeID   string
	nodeType NodeType
	inputs   map[string]any
}

// recordingExecutor answers pass-through types locally and everything else with
// the configured outputs or errors, remembering every call.
type recordingExecutor struct {
	mu      sync.Mutex
	calls   []call
	outputs map[string]any
	errs    map[string]error
}

func (e *recordingExecutor) Execute(ctx context.Context, nodeID string, nodeType NodeType, inputs map[string]any) (any, error) {
	e.mu.Lock()
	e.calls = append(e.calls, call{nodeID: nodeID, nodeType: nodeType, inputs: inputs})
	e.mu.Unlock()

	if err, ok := e.errs[nodeID]; ok {
		return nil, err
	}
	if out, ok := e.outputs[nodeID]; ok {
		return out, nil
	}
	return PassthroughExecutor{Remote: ExecutorFunc(func(context.Context, string, NodeType, map[string]any) (any, error) {
		return "out-" + nodeID, nil
	})}.Execute(ctx, nodeID, nodeType, inputs)
}

func (e *recordingExecutor) callFor(nodeID string) (call, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.calls {
		if c.nodeID == nodeID {
			return c, true
		}
	}
	return call{}, false
}

// captureSink keeps every submitted run.
type captureSink struct {
	mu   sync.Mutex
	runs []RunRecord
}

func (s *captureSink) Submit(rec RunRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, rec)
	return true
}

func (s *captureSink) records() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RunRecord(nil), s.runs...)
}
