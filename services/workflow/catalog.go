package workflow

// ValueKind is the semantic kind of value flowing through a handle.
type ValueKind string

const (
	KindText  ValueKind = "text"
	KindImage ValueKind = "image"
	KindVideo ValueKind = "video"
	KindAny   ValueKind = "any"
)

// HandleSpec declares the input handles of a node type and the kind of its output.
type HandleSpec struct {
	Inputs map[string]ValueKind
	Output ValueKind
}

// Catalog is the static node type table. Adding a node type means adding an entry
// here and a case in the remote executor.
var Catalog = map[NodeType]HandleSpec{
	TextNodeType: {
		Output: KindText,
	},
	ImageUploadNodeType: {
		Output: KindImage,
	},
	VideoUploadNodeType: {
		Output: KindVideo,
	},
	LLMNodeType: {
		Inputs: map[string]ValueKind{
			"system_prompt": KindText,
			"user_message":  KindText,
			"images":        KindImage,
		},
		Output: KindText,
	},
	CropImageNodeType: {
		Inputs: map[string]ValueKind{
			"image_url":      KindImage,
			"x_percent":      KindText,
			"y_percent":      KindText,
			"width_percent":  KindText,
			"height_percent": KindText,
		},
		Output: KindImage,
	},
	ExtractFrameNodeType: {
		Inputs: map[string]ValueKind{
			"video_url": KindVideo,
			"timestamp": KindText,
		},
		Output: KindImage,
	},
}

// sourceKind looks up the kind produced by a source handle.
func sourceKind(t NodeType, handle string) (ValueKind, bool) {
	spec, ok := Catalog[t]
	if !ok || handle != DefaultSourceHandle || spec.Output == "" {
		return "", false
	}
	return spec.Output, true
}

// targetKind looks up the kind accepted by a target handle.
func targetKind(t NodeType, handle string) (ValueKind, bool) {
	spec, ok := Catalog[t]
	if !ok {
		return "", false
	}
	kind, ok := spec.Inputs[handle]
	return kind, ok
}
