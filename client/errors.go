package client

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrPromptNotFound is returned when the history has no entry for a prompt id
	ErrPromptNotFound = errors.New("prompt not found in history")
	// ErrWaitTimeout is returned when a prompt did not finish within the wait timeout
	ErrWaitTimeout = errors.New("timed out waiting for prompt")
	// ErrInterrupted is returned when the server reports the prompt as interrupted
	ErrInterrupted = errors.New("prompt execution interrupted")
	// ErrConnectionClosed is returned when the websocket went away while waiting
	ErrConnectionClosed = errors.New("websocket connection closed")
	// ErrNotConnected is returned when waiting before Connect succeeded
	ErrNotConnected = errors.New("websocket not connected")
)

// HTTPError is a non-success response from the ComfyUI server
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// QueueError is returned when the server rejects a prompt, typically because a
// node failed validation (a checkpoint path that does not exist, a missing input).
type QueueError struct {
	StatusCode int
	Err        PromptError
	NodeErrors map[string]NodeError
}

func (e *QueueError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "prompt rejected (%d)", e.StatusCode)
	if e.Err.Message != "" {
		sb.WriteString(": " + e.Err.Message)
	}
	if e.Err.Details != "" {
		sb.WriteString(": " + e.Err.Details)
	}

	ids := make([]string, 0, len(e.NodeErrors))
	for id := range e.NodeErrors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ne := e.NodeErrors[id]
		for _, pe := range ne.Errors {
			fmt.Fprintf(&sb, "; node %s (%s): %s", id, ne.ClassType, pe.Message)
			if pe.Details != "" {
				sb.WriteString(" " + pe.Details)
			}
		}
	}
	return sb.String()
}

// ExecutionError is returned when a node raised an exception on the server
type ExecutionError struct {
	PromptID  string
	Exception PromptMessageStoppedException
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed in node %s (%s): %s - %s",
		e.Exception.NodeID,
		e.Exception.NodeType,
		e.Exception.ExceptionType,
		e.Exception.ExceptionMessage)
}
