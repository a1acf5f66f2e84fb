package workflow

// imagesHandle collects every incoming edge into an ordered list instead of
// letting the last edge win.
const imagesHandle = "images"

// OutputReader exposes the outputs produced so far in a run.
type OutputReader interface {
	Output(nodeID string) (any, bool)
}

// ResolveInputs builds the input bag for a node from its incoming edges and its
// own static fields. It does not mutate its arguments, so the same snapshot always
// yields the same result. outputs may be nil when nothing has run yet.
func ResolveInputs(nodeID string, nodes []Node, edges []Edge, outputs OutputReader) map[string]any {
	index := nodeIndex(nodes)
	inputs := map[string]any{}

	for _, e := range edges {
		if e.Target != nodeID {
			continue
		}

		value := sourceOutput(index, e.Source, outputs)
		handle := e.TargetHandleOrDefault()
		if handle == imagesHandle {
			images, _ := inputs[imagesHandle].([]any)
			inputs[imagesHandle] = append(images, value)
			continue
		}
		inputs[handle] = value
	}

	node, ok := index[nodeID]
	if !ok {
		return inputs
	}
	mergeStaticFields(node, inputs)
	return inputs
}

// sourceOutput returns the current output of a source node. Pass-through nodes
// are read live from their own data so a freshly edited value is used even if
// the node never ran.
func sourceOutput(index map[string]Node, sourceID string, outputs OutputReader) any {
	if source, ok := index[sourceID]; ok {
		switch f := source.Data.Fields.(type) {
		case *TextFields:
			return f.Text
		case *ImageUploadFields:
			return f.ImageURL
		case *VideoUploadFields:
			return f.VideoURL
		}
	}
	if outputs == nil {
		return nil
	}
	out, _ := outputs.Output(sourceID)
	return out
}

// mergeStaticFields adds the node's own configuration to the input bag. Edge
// supplied values win over static ones, except the LLM model which always comes
// from the node.
func mergeStaticFields(node Node, inputs map[string]any) {
	switch f := node.Data.Fields.(type) {
	case *TextFields:
		inputs["text"] = f.Text
	case *ImageUploadFields:
		inputs["image_url"] = f.ImageURL
	case *VideoUploadFields:
		inputs["video_url"] = f.VideoURL
	case *LLMFields:
		model := f.Model
		if model == "" {
			model = DefaultLLMModel
		}
		inputs["model"] = model
		if f.SystemPrompt != "" {
			setIfUnset(inputs, "system_prompt", f.SystemPrompt)
		}
		if f.UserMessage != "" {
			setIfUnset(inputs, "user_message", f.UserMessage)
		}
	case *CropImageFields:
		setIfUnset(inputs, "x_percent", f.XPercent)
		setIfUnset(inputs, "y_percent", f.YPercent)
		setIfUnset(inputs, "width_percent", f.WidthPercent)
		setIfUnset(inputs, "height_percent", f.HeightPercent)
	case *ExtractFrameFields:
		if f.Timestamp != "" {
			setIfUnset(inputs, "timestamp", f.Timestamp)
		}
	}
}

// setIfUnset fills key unless an edge already delivered a value for it.
func setIfUnset(inputs map[string]any, key string, value any) {
	if v, ok := inputs[key]; ok && v != nil {
		return
	}
	inputs[key] = value
}
