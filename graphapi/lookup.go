package graphapi

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/mo"
)

var ErrNodeNotFound = errors.New("no node with title")

// NodeIDByTitle returns the id of the first node (in node id order) whose title
// matches, ignoring case.
func (w *Workflow) NodeIDByTitle(title string) mo.Option[string] {
	for _, id := range w.NodeIDs() {
		if strings.EqualFold(w.Nodes[id].Title(), title) {
			return mo.Some(id)
		}
	}
	slog.Warn("No node found with title", "title", title)
	return mo.None[string]()
}

// NodeByTitle returns the first node whose title matches, ignoring case.
// Callers must handle the absent case before mutating the node.
func (w *Workflow) NodeByTitle(title string) mo.Option[*PromptNode] {
	id, ok := w.NodeIDByTitle(title).Get()
	if !ok {
		return mo.None[*PromptNode]()
	}
	return mo.Some(w.Nodes[id])
}

// SetInput overwrites a single input of the node with the given title
func (w *Workflow) SetInput(title string, input string, value interface{}) error {
	return w.SetInputs(title, map[string]interface{}{input: value})
}

// SetInputs overwrites several inputs of the node with the given title. Nothing
// is written when the node does not exist.
func (w *Workflow) SetInputs(title string, values map[string]interface{}) error {
	node, ok := w.NodeByTitle(title).Get()
	if !ok {
		return fmt.Errorf("%w %q", ErrNodeNotFound, title)
	}
	for k, v := range values {
		node.Inputs[k] = v
	}
	return nil
}
