package client

import "github.com/richinsley/comfybatch/graphapi"

// DataOutput addresses a file produced by a node on the server.
// There may be other DataOutput types; "text" entries carry their content in Text.
type DataOutput struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
	Text      string `json:"-"`
}

// Artifact is a DataOutput together with the bytes fetched from /view
type Artifact struct {
	DataOutput
	Data []byte
}

// NodeArtifacts groups the artifacts of one output node in server order
type NodeArtifacts struct {
	NodeID    string
	Artifacts []Artifact
}

type SystemStats struct {
	System  System `json:"system"`
	Devices []GPU  `json:"devices"`
}

type System struct {
	OS             string `json:"os"`
	PythonVersion  string `json:"python_version"`
	EmbeddedPython bool   `json:"embedded_python"`
}

type GPU struct {
	Name             string `json:"name"`
	Type             string `json:"type"`
	Index            int    `json:"index"`
	VRAM_Total       int64  `json:"vram_total"`
	VRAM_Free        int64  `json:"vram_free"`
	Torch_VRAM_Total int64  `json:"torch_vram_total"`
	Torch_VRAM_Free  int64  `json:"torch_vram_free"`
}

type QueueExecInfo struct {
	ExecInfo struct {
		QueueRemaining int `json:"queue_remaining"`
	} `json:"exec_info"`
}

// NodeOutput is one node's entry in a history item's outputs
type NodeOutput struct {
	Images []DataOutput `json:"images,omitempty"`
	Gifs   []DataOutput `json:"gifs,omitempty"`
}

// Files returns the fetchable outputs of the node, images first
func (o NodeOutput) Files() []DataOutput {
	retv := make([]DataOutput, 0, len(o.Images)+len(o.Gifs))
	retv = append(retv, o.Images...)
	retv = append(retv, o.Gifs...)
	return retv
}

type HistoryStatus struct {
	StatusStr string `json:"status_str"`
	Completed bool   `json:"completed"`
}

// HistoryItem is the server's record of an executed prompt
type HistoryItem struct {
	PromptID string                `json:"-"`
	Outputs  map[string]NodeOutput `json:"outputs"`
	Status   HistoryStatus         `json:"status"`
}

// ManifestEntry lists the files one output node produced
type ManifestEntry struct {
	NodeID string
	Files  []DataOutput
}

// Manifest returns the nodes that produced files, ordered by node id
func (h *HistoryItem) Manifest() []ManifestEntry {
	ids := make([]string, 0, len(h.Outputs))
	for id, o := range h.Outputs {
		if len(o.Files()) > 0 {
			ids = append(ids, id)
		}
	}
	graphapi.SortNodeIDs(ids)

	retv := make([]ManifestEntry, 0, len(ids))
	for _, id := range ids {
		retv = append(retv, ManifestEntry{NodeID: id, Files: h.Outputs[id].Files()})
	}
	return retv
}

type PromptError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details"`
	ExtraInfo map[string]interface{} `json:"extra_info"`
}

// NodeError is the validation report for a single node of a rejected prompt
type NodeError struct {
	Errors           []PromptError `json:"errors"`
	DependentOutputs []string      `json:"dependent_outputs"`
	ClassType        string        `json:"class_type"`
}

type PromptErrorMessage struct {
	Error      PromptError          `json:"error"`
	NodeErrors map[string]NodeError `json:"node_errors"`
}

// UploadedFile is the server's answer to an upload; Name may differ from the
// requested filename when overwrite is off.
type UploadedFile struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// NodeObject is the server-side description of a node class (GET /object_info)
type NodeObject struct {
	Name        string          `json:"name"`
	DisplayName string          `json:"display_name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	OutputNode  bool            `json:"output_node"`
	Output      []string        `json:"output"`
	Input       NodeObjectInput `json:"input"`
}

type NodeObjectInput struct {
	Required map[string]interface{} `json:"required"`
	Optional map[string]interface{} `json:"optional,omitempty"`
}

// NodeObjects maps node class names to their descriptions
type NodeObjects map[string]*NodeObject

// MissingClassTypes returns the class types used by the workflow that the server does not know
func (o NodeObjects) MissingClassTypes(wf *graphapi.Workflow) []string {
	seen := make(map[string]bool)
	retv := make([]string, 0)
	for _, id := range wf.NodeIDs() {
		ct := wf.Nodes[id].ClassType
		if _, ok := o[ct]; ok || seen[ct] {
			continue
		}
		seen[ct] = true
		retv = append(retv, ct)
	}
	return retv
}
