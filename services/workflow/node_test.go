package workflow

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

const canvasJSON = `{
	"id": "wf-1",
	"nodes": [
		{"id": "A", "type": "textNode", "position": {"x": 10, "y": 20},
		 "data": {"label": "Prompt", "text": "hi"}},
		{"id": "B", "type": "llmNode", "position": {"x": 200, "y": 20},
		 "data": {"model": "gemini-2.5-pro", "systemPrompt": "be brief", "connectedHandles": ["user_message"], "status": "success"}},
		{"id": "C", "type": "cropImageNode", "position": {"x": 0, "y": 0},
		 "data": {"xPercent": 10, "yPercent": 20, "widthPercent": 50, "heightPercent": 60}},
		{"id": "F", "type": "futureNode", "position": {"x": 0, "y": 0},
		 "data": {"label": "New", "knob": 3}}
	],
	"edges": [
		{"id": "e1", "source": "A", "sourceHandle": "output", "target": "B", "targetHandle": "user_message"}
	]
}`

func TestWorkflowDefinitionDecodesNodeVariants(t *testing.T) {
	var wf WorkflowDefinition
	require.NoError(t, json.Unmarshal([]byte(canvasJSON), &wf))

	require.Equal(t, "wf-1", wf.ID)
	require.Len(t, wf.Nodes, 4)
	require.Equal(t, []Edge{{ID: "e1", Source: "A", SourceHandle: "output", Target: "B", TargetHandle: "user_message"}}, wf.Edges)

	require.Equal(t, "Prompt", wf.Nodes[0].Data.Label)
	require.Equal(t, &TextFields{Text: "hi"}, wf.Nodes[0].Data.Fields)
	require.Equal(t, Position{X: 10, Y: 20}, wf.Nodes[0].Position)

	require.Equal(t, &LLMFields{Model: "gemini-2.5-pro", SystemPrompt: "be brief"}, wf.Nodes[1].Data.Fields)
	require.Equal(t, []string{"user_message"}, wf.Nodes[1].Data.ConnectedHandles)
	require.Equal(t, StatusSuccess, wf.Nodes[1].Data.Status)

	require.Equal(t, &CropImageFields{XPercent: 10, YPercent: 20, WidthPercent: 50, HeightPercent: 60}, wf.Nodes[2].Data.Fields)

	require.Equal(t, "New", wf.Nodes[3].Data.Label)
	require.Equal(t, UnknownFields{"knob": float64(3)}, wf.Nodes[3].Data.Fields)
}

func TestNodeRoundTripKeepsFieldsAndCommonData(t *testing.T) {
	in := Node{
		ID:   "B",
		Type: LLMNodeType,
		Data: NodeData{
			Label:            "Writer",
			ConnectedHandles: []string{"images"},
			Fields:           &LLMFields{Model: "m", UserMessage: "describe"},
		},
	}

	b, err := json.Marshal(in)
	require.NoError(t, err)

	var raw struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(b, &raw))
	data := raw.Data
	require.Equal(t, "m", data["model"])
	require.Equal(t, "describe", data["userMessage"])
	require.Equal(t, "Writer", data["label"])
	require.Equal(t, []any{"images"}, data["connectedHandles"])

	var out Node
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, in, out)
}

func TestNodeWithoutDataGetsEmptyVariant(t *testing.T) {
	var n Node
	require.NoError(t, json.Unmarshal([]byte(`{"id":"V","type":"videoUploadNode"}`), &n))
	require.Equal(t, &VideoUploadFields{}, n.Data.Fields)
}
