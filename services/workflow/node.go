package workflow

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// this file node.go contains the struct definition of the workflow graph (nodes and edges).

// NodeType names one entry of the node type catalog.
type NodeType string

const (
	TextNodeType         NodeType = "textNode"
	ImageUploadNodeType  NodeType = "imageUploadNode"
	VideoUploadNodeType  NodeType = "videoUploadNode"
	LLMNodeType          NodeType = "llmNode"
	CropImageNodeType    NodeType = "cropImageNode"
	ExtractFrameNodeType NodeType = "extractFrameNode"

	// default handle names used when an edge leaves them empty
	DefaultSourceHandle = "output"
	DefaultTargetHandle = "input"

	DefaultLLMModel = "gemini-2.5-flash"
)

// worflow definition holds the id and nodes + edges
type WorkflowDefinition struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

type Node struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// Position is only kept so the canvas layout survives a round trip; the engine ignores it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData is the "data" bag of a node: a few fields every node carries plus
// the type specific Fields variant selected by Node.Type when decoding.
type NodeData struct {
	Label            string
	ConnectedHandles []string
	Status           NodeStatus
	Fields           NodeFields
}

// NodeFields is implemented by the per-type field structs below.
type NodeFields interface {
	nodeType() NodeType
}

type TextFields struct {
	Text string `json:"text"`
}

type ImageUploadFields struct {
	ImageURL string `json:"imageUrl"`
}

type VideoUploadFields struct {
	VideoURL string `json:"videoUrl"`
}

type LLMFields struct {
	Model        string `json:"model"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
	UserMessage  string `json:"userMessage,omitempty"`
}

type CropImageFields struct {
	XPercent      float64 `json:"xPercent"`
	YPercent      float64 `json:"yPercent"`
	WidthPercent  float64 `json:"widthPercent"`
	HeightPercent float64 `json:"heightPercent"`
}

type ExtractFrameFields struct {
	Timestamp string `json:"timestamp"`
}

// UnknownFields keeps the raw data of node types this build does not know about.
type UnknownFields map[string]any

func (*TextFields) nodeType() NodeType         { return TextNodeType }
func (*ImageUploadFields) nodeType() NodeType  { return ImageUploadNodeType }
func (*VideoUploadFields) nodeType() NodeType  { return VideoUploadNodeType }
func (*LLMFields) nodeType() NodeType          { return LLMNodeType }
func (*CropImageFields) nodeType() NodeType    { return CropImageNodeType }
func (*ExtractFrameFields) nodeType() NodeType { return ExtractFrameNodeType }
func (UnknownFields) nodeType() NodeType       { return "" }

// newFields returns an empty Fields variant for the given node type.
func newFields(t NodeType) NodeFields {
	switch t {
	case TextNodeType:
		return &TextFields{}
	case ImageUploadNodeType:
		return &ImageUploadFields{}
	case VideoUploadNodeType:
		return &VideoUploadFields{}
	case LLMNodeType:
		return &LLMFields{}
	case CropImageNodeType:
		return &CropImageFields{}
	case ExtractFrameNodeType:
		return &ExtractFrameFields{}
	default:
		return UnknownFields{}
	}
}

// keys owned by NodeData itself rather than by the per-type variant
var commonDataKeys = []string{"label", "connectedHandles", "status"}

type commonData struct {
	Label            string     `json:"label,omitempty"`
	ConnectedHandles []string   `json:"connectedHandles,omitempty"`
	Status           NodeStatus `json:"status,omitempty"`
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID       string          `json:"id"`
		Type     NodeType        `json:"type"`
		Position Position        `json:"position"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	n.ID = raw.ID
	n.Type = raw.Type
	n.Position = raw.Position
	n.Data = NodeData{Fields: newFields(raw.Type)}

	if len(raw.Data) == 0 || string(raw.Data) == "null" {
		return nil
	}

	var common commonData
	if err := json.Unmarshal(raw.Data, &common); err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}
	n.Data.Label = common.Label
	n.Data.ConnectedHandles = common.ConnectedHandles
	n.Data.Status = common.Status

	if _, ok := n.Data.Fields.(UnknownFields); ok {
		m := map[string]any{}
		if err := json.Unmarshal(raw.Data, &m); err != nil {
			return fmt.Errorf("node %s: %w", raw.ID, err)
		}
		for _, k := range commonDataKeys {
			delete(m, k)
		}
		n.Data.Fields = UnknownFields(m)
		return nil
	}

	if err := json.Unmarshal(raw.Data, n.Data.Fields); err != nil {
		return fmt.Errorf("node %s: invalid %s data: %w", raw.ID, raw.Type, err)
	}
	return nil
}

func (d NodeData) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if d.Fields != nil {
		b, err := json.Marshal(d.Fields)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, err
		}
	}
	if d.Label != "" {
		out["label"] = d.Label
	}
	if len(d.ConnectedHandles) > 0 {
		out["connectedHandles"] = d.ConnectedHandles
	}
	if d.Status != "" {
		out["status"] = d.Status
	}
	return json.Marshal(out)
}

type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// SourceHandleOrDefault returns the source handle, "output" when unset.
func (e Edge) SourceHandleOrDefault() string {
	if e.SourceHandle == "" {
		return DefaultSourceHandle
	}
	return e.SourceHandle
}

// TargetHandleOrDefault returns the target handle, "input" when unset.
func (e Edge) TargetHandleOrDefault() string {
	if e.TargetHandle == "" {
		return DefaultTargetHandle
	}
	return e.TargetHandle
}

// nodeIndex maps node ids to nodes.
func nodeIndex(nodes []Node) map[string]Node {
	m := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n
	}
	return m
}
