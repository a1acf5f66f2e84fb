package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
)

// NodeExecutor runs one node invocation. It is called at most once per node per
// run; any returned error marks the node failed with the error message verbatim.
type NodeExecutor interface {
	Execute(ctx context.Context, nodeID string, nodeType NodeType, inputs map[string]any) (any, error)
}

// ExecutorFunc adapts a function to NodeExecutor.
type ExecutorFunc func(ctx context.Context, nodeID string, nodeType NodeType, inputs map[string]any) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, nodeID string, nodeType NodeType, inputs map[string]any) (any, error) {
	return f(ctx, nodeID, nodeType, inputs)
}

var errNoRemoteExecutor = errors.New("no remote executor configured")

// PassthroughExecutor answers the text and upload node types locally, their
// output being their own field, and hands every other type to Remote.
type PassthroughExecutor struct {
	Remote NodeExecutor
}

func (p PassthroughExecutor) Execute(ctx context.Context, nodeID string, nodeType NodeType, inputs map[string]any) (any, error) {
	switch nodeType {
	case TextNodeType:
		return inputs["text"], nil
	case ImageUploadNodeType:
		return inputs["image_url"], nil
	case VideoUploadNodeType:
		return inputs["video_url"], nil
	}
	if p.Remote == nil {
		return nil, errNoRemoteExecutor
	}
	return p.Remote.Execute(ctx, nodeID, nodeType, inputs)
}

type executeRequest struct {
	NodeID   string         `json:"nodeId"`
	NodeType NodeType       `json:"nodeType"`
	Inputs   map[string]any `json:"inputs"`
}

type executeResponse struct {
	Output any    `json:"output"`
	Error  string `json:"error"`
}

// HTTPNodeExecutor calls the remote node service at
// {baseURL}/nodes/{nodeType}/execute. Retries and timeouts beyond the client
// timeout belong to the remote side.
type HTTPNodeExecutor struct {
	baseURL string
	client  *http.Client
}

func NewHTTPNodeExecutor(baseURL string, timeout time.Duration) *HTTPNodeExecutor {
	return &HTTPNodeExecutor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (e *HTTPNodeExecutor) Execute(ctx context.Context, nodeID string, nodeType NodeType, inputs map[string]any) (any, error) {
	slog.Debug("Calling remote executor", "node id", nodeID, "type", nodeType)

	body, err := json.Marshal(executeRequest{NodeID: nodeID, NodeType: nodeType, Inputs: inputs})
	if err != nil {
		return nil, fmt.Errorf("encode inputs: %w", err)
	}

	endpoint, err := url.JoinPath(e.baseURL, "nodes", string(nodeType), "execute")
	if err != nil {
		return nil, fmt.Errorf("build executor url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executor request failed: %w", err)
	}
	defer resp.Body.Close()

	var out executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("executor returned status: %d", resp.StatusCode)
		}
		return nil, ErrResponseDecodeFailed
	}
	if out.Error != "" {
		return nil, errors.New(out.Error)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("executor returned status: %d", resp.StatusCode)
	}
	return out.Output, nil
}
