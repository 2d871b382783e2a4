package graphapi

// Prompt is the data that is enqueued to an instance of ComfyUI
type Prompt struct {
	ClientID string                 `json:"client_id"`
	Nodes    map[string]*PromptNode `json:"prompt"`
}

// NodeMeta is the frontend metadata ComfyUI stores with API-format nodes.
type NodeMeta struct {
	Title string `json:"title"`
}

type PromptNode struct {
	// Inputs can be one of:
	//	json.Number, string, bool, nil
	//	[]interface{} where: [0] is string of source node
	//					     [1] is the output slot index of the source node
	Inputs    map[string]interface{} `json:"inputs"`
	ClassType string                 `json:"class_type"`
	Meta      *NodeMeta              `json:"_meta,omitempty"`
}

// Title returns the node's display title, or "" when the node carries no metadata
func (n *PromptNode) Title() string {
	if n.Meta == nil {
		return ""
	}
	return n.Meta.Title
}

// Link is a reference from a node input to an output slot of another node
type Link struct {
	NodeID string
	Slot   int
}

// InputLink returns the link held by the named input, if that input is a link
func (n *PromptNode) InputLink(name string) (Link, bool) {
	v, ok := n.Inputs[name]
	if !ok {
		return Link{}, false
	}
	return asLink(v)
}

// Links returns every linked input of the node keyed by input name
func (n *PromptNode) Links() map[string]Link {
	retv := make(map[string]Link)
	for name, v := range n.Inputs {
		if l, ok := asLink(v); ok {
			retv[name] = l
		}
	}
	return retv
}
