package graphapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrEmptyWorkflow    = errors.New("workflow has no nodes")
	ErrMissingClassType = errors.New("node has no class_type")
	ErrDanglingLink     = errors.New("input references a missing node")
)

// Workflow is an API-format ComfyUI job graph: node id to node.
// This is the format produced by "Save (API Format)" in the ComfyUI frontend and
// the format the server accepts in the "prompt" field of POST /prompt.
type Workflow struct {
	Nodes map[string]*PromptNode
}

func (w *Workflow) UnmarshalJSON(b []byte) error {
	// numbers stay json.Number so 64 bit seeds survive a load/save cycle
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	nodes := make(map[string]*PromptNode)
	if err := dec.Decode(&nodes); err != nil {
		return err
	}
	for id, n := range nodes {
		if n == nil {
			return fmt.Errorf("node %s is null", id)
		}
		if n.Inputs == nil {
			n.Inputs = make(map[string]interface{})
		}
	}
	w.Nodes = nodes
	return nil
}

func (w *Workflow) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Nodes)
}

func NewWorkflowFromJsonReader(r io.Reader) (*Workflow, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	wf := &Workflow{}
	if err := json.Unmarshal(content, wf); err != nil {
		return nil, fmt.Errorf("decoding workflow: %w", err)
	}
	if len(wf.Nodes) == 0 {
		return nil, ErrEmptyWorkflow
	}
	return wf, nil
}

func NewWorkflowFromJsonFile(path string) (*Workflow, error) {
	freader, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer freader.Close()

	return NewWorkflowFromJsonReader(freader)
}

func NewWorkflowFromJsonString(data string) (*Workflow, error) {
	return NewWorkflowFromJsonReader(strings.NewReader(data))
}

// NodeIDs returns the node ids in execution-independent, numeric-aware order
// ("2" < "10" < "10:3").
func (w *Workflow) NodeIDs() []string {
	ids := make([]string, 0, len(w.Nodes))
	for id := range w.Nodes {
		ids = append(ids, id)
	}
	SortNodeIDs(ids)
	return ids
}

// GetNodeById returns the node with the given id or nil
func (w *Workflow) GetNodeById(id string) *PromptNode {
	return w.Nodes[id]
}

// Validate checks that every node has a class type and that every link points
// at a node of the same workflow. All problems are reported together.
func (w *Workflow) Validate() error {
	if len(w.Nodes) == 0 {
		return ErrEmptyWorkflow
	}

	var errs []error
	for _, id := range w.NodeIDs() {
		n := w.Nodes[id]
		if n.ClassType == "" {
			errs = append(errs, fmt.Errorf("%w: node %s", ErrMissingClassType, id))
		}

		links := n.Links()
		names := make([]string, 0, len(links))
		for name := range links {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			l := links[name]
			if _, ok := w.Nodes[l.NodeID]; !ok {
				errs = append(errs, fmt.Errorf("%w: node %s input %q -> %s", ErrDanglingLink, id, name, l.NodeID))
			}
		}
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy. Mutating the copy never affects the original.
func (w *Workflow) Clone() *Workflow {
	retv := &Workflow{Nodes: make(map[string]*PromptNode, len(w.Nodes))}
	for id, n := range w.Nodes {
		nn := &PromptNode{
			ClassType: n.ClassType,
			Inputs:    make(map[string]interface{}, len(n.Inputs)),
		}
		if n.Meta != nil {
			meta := *n.Meta
			nn.Meta = &meta
		}
		for k, v := range n.Inputs {
			nn.Inputs[k] = cloneValue(v)
		}
		retv.Nodes[id] = nn
	}
	return retv
}

// ToPrompt wraps the workflow for submission by the given client
func (w *Workflow) ToPrompt(clientID string) Prompt {
	return Prompt{
		ClientID: clientID,
		Nodes:    w.Nodes,
	}
}

func cloneValue(v interface{}) interface{} {
	switch value := v.(type) {
	case []interface{}:
		retv := make([]interface{}, len(value))
		for i, item := range value {
			retv[i] = cloneValue(item)
		}
		return retv
	case map[string]interface{}:
		retv := make(map[string]interface{}, len(value))
		for k, item := range value {
			retv[k] = cloneValue(item)
		}
		return retv
	default:
		// scalars are immutable
		return v
	}
}

func asLink(v interface{}) (Link, bool) {
	tuple, ok := v.([]interface{})
	if !ok || len(tuple) != 2 {
		return Link{}, false
	}
	nodeID, ok := tuple[0].(string)
	if !ok {
		return Link{}, false
	}

	var slot int
	switch s := tuple[1].(type) {
	case json.Number:
		i, err := s.Int64()
		if err != nil {
			return Link{}, false
		}
		slot = int(i)
	case float64:
		slot = int(s)
	case int:
		slot = s
	case int64:
		slot = int(s)
	default:
		return Link{}, false
	}
	return Link{NodeID: nodeID, Slot: slot}, true
}

// SortNodeIDs sorts ids numerically segment by segment. Compound ids produced by
// subgraph expansion ("57:8") sort after their parent id.
func SortNodeIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return CompareNodeIDs(ids[i], ids[j]) < 0
	})
}

func CompareNodeIDs(a, b string) int {
	pa := strings.Split(a, ":")
	pb := strings.Split(b, ":")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		ia, erra := strconv.Atoi(pa[i])
		ib, errb := strconv.Atoi(pb[i])
		if erra == nil && errb == nil {
			if ia != ib {
				if ia < ib {
					return -1
				}
				return 1
			}
			continue
		}
		if c := strings.Compare(pa[i], pb[i]); c != 0 {
			return c
		}
	}
	return len(pa) - len(pb)
}
