package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// EventSource yields decoded websocket messages in the order the server sent them
type EventSource interface {
	NextMessage(ctx context.Context) (*WSStatusMessage, error)
}

// WaitForCompletion consumes messages from src until the server reports that the
// prompt finished: an "executing" message for promptID whose node is null.
// Messages for other prompts are skipped, terminal ones included.
//
// A timeout <= 0 waits until ctx is done. A timeout yields an error wrapping
// ErrWaitTimeout, a cancelled ctx yields ctx.Err(). A node exception ends the wait
// with an *ExecutionError and an interruption with ErrInterrupted.
func WaitForCompletion(ctx context.Context, src EventSource, promptID string, handlers *MessageHandlers, timeout time.Duration) error {
	t := &promptTracker{
		item:     &QueueItem{PromptID: promptID},
		handlers: handlers,
	}
	return t.wait(ctx, src, timeout)
}

// WaitForPrompt waits on the client's websocket for the queued item to finish,
// using the client's wait timeout and callbacks.
func (c *ComfyClient) WaitForPrompt(ctx context.Context, item *QueueItem, handlers *MessageHandlers) error {
	if c.webSocket == nil {
		return ErrNotConnected
	}

	t := &promptTracker{
		client:   c,
		item:     item,
		handlers: handlers,
	}
	err := t.wait(ctx, c.webSocket, c.waitTimeout)
	if err != nil && c.interruptOnCancel && interruptible(err) {
		// the caller's context is gone, give the interrupt its own short deadline
		ictx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if ierr := c.Interrupt(ictx); ierr != nil {
			slog.Warn("Failed to interrupt prompt", "prompt_id", item.PromptID, "error", ierr)
		} else {
			slog.Info("Interrupted prompt", "prompt_id", item.PromptID)
		}
	}
	return err
}

// interruptible reports whether the wait ended because the caller gave up
func interruptible(err error) bool {
	return errors.Is(err, ErrWaitTimeout) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type promptTracker struct {
	client   *ComfyClient
	item     *QueueItem
	handlers *MessageHandlers
}

func (t *promptTracker) wait(ctx context.Context, src EventSource, timeout time.Duration) error {
	if t.handlers == nil {
		t.handlers = &MessageHandlers{}
	}
	if t.handlers.OnComplete != nil {
		defer t.handlers.OnComplete()
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, timeout, ErrWaitTimeout)
		defer cancel()
	}

	for {
		msg, err := src.NextMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				if errors.Is(context.Cause(ctx), ErrWaitTimeout) {
					return fmt.Errorf("%w %s after %s", ErrWaitTimeout, t.item.PromptID, timeout)
				}
				return ctx.Err()
			}
			return err
		}

		pm, ok := t.translate(msg)
		if !ok {
			continue
		}
		done, err := t.handlers.dispatch(pm)
		if done {
			return err
		}
	}
}

// translate turns a websocket message into a message about the tracked prompt.
// It reports false for messages that belong to other prompts or carry nothing
// the handlers care about.
func (t *promptTracker) translate(msg *WSStatusMessage) (PromptMessage, bool) {
	if msg.Type == "status" {
		if s, ok := msg.Data.(*WSMessageDataStatus); ok && t.client != nil {
			t.client.setQueueCount(s.Status.ExecInfo.QueueRemaining)
		}
		return PromptMessage{}, false
	}

	pid := msg.PromptID()
	// progress from older servers carries no prompt id; with one prompt in
	// flight it can only be ours
	if pid != t.item.PromptID && !(msg.Type == "progress" && pid == "") {
		return PromptMessage{}, false
	}

	switch s := msg.Data.(type) {
	case *WSMessageDataExecutionStart:
		t.callbacks(func(cb *ComfyClientCallbacks) {
			if cb.QueuedItemStarted != nil {
				cb.QueuedItemStarted(t.client, t.item)
			}
		})
		return PromptMessage{
			Type:    "started",
			Message: &PromptMessageStarted{PromptID: s.PromptID},
		}, true

	case *WSMessageDataExecutionCached:
		return PromptMessage{
			Type:    "cached",
			Message: &PromptMessageCached{Nodes: s.Nodes},
		}, true

	case *WSMessageDataExecuting:
		if s.Node == nil {
			// final node was processed
			return t.stopped(QueuedItemStoppedReasonFinished, nil), true
		}
		nodeID := *s.Node
		if s.DisplayNode != nil {
			nodeID = *s.DisplayNode
		}
		return PromptMessage{
			Type: "executing",
			Message: &PromptMessageExecuting{
				NodeID: *s.Node,
				Title:  t.nodeTitle(nodeID),
			},
		}, true

	case *WSMessageDataProgress:
		pm := &PromptMessageProgress{Value: s.Value, Max: s.Max}
		if s.Node != nil {
			pm.NodeID = *s.Node
		}
		return PromptMessage{Type: "progress", Message: pm}, true

	case *WSMessageDataExecuted:
		mdata := &PromptMessageData{
			NodeID: s.Node,
			Data:   s.Output,
		}
		t.callbacks(func(cb *ComfyClientCallbacks) {
			if cb.QueuedItemDataAvailable != nil {
				cb.QueuedItemDataAvailable(t.client, t.item, mdata)
			}
		})
		return PromptMessage{Type: "data", Message: mdata}, true

	case *WSMessageExecutionSuccess:
		return PromptMessage{
			Type: "execution_success",
			Message: &PromptMessageExecutionSuccess{
				PromptID:  s.PromptID,
				Timestamp: s.Timestamp,
			},
		}, true

	case *WSMessageExecutionInterrupted:
		return t.stopped(QueuedItemStoppedReasonInterrupted, nil), true

	case *WSMessageExecutionError:
		return t.stopped(QueuedItemStoppedReasonError, &PromptMessageStoppedException{
			NodeID:           s.Node,
			NodeType:         s.NodeType,
			NodeName:         t.nodeTitle(s.Node),
			ExceptionMessage: s.ExceptionMessage,
			ExceptionType:    s.ExceptionType,
			Traceback:        s.Traceback,
		}), true
	}

	slog.Debug("Ignoring message", "type", msg.Type)
	return PromptMessage{}, false
}

func (t *promptTracker) stopped(reason QueuedItemStoppedReason, exception *PromptMessageStoppedException) PromptMessage {
	t.callbacks(func(cb *ComfyClientCallbacks) {
		if cb.QueuedItemStopped != nil {
			cb.QueuedItemStopped(t.client, t.item, reason)
		}
	})
	return PromptMessage{
		Type: "stopped",
		Message: &PromptMessageStopped{
			QueueItem: t.item,
			Reason:    reason,
			Exception: exception,
		},
	}
}

func (t *promptTracker) callbacks(fn func(*ComfyClientCallbacks)) {
	if t.client != nil && t.client.callbacks != nil {
		fn(t.client.callbacks)
	}
}

// nodeTitle resolves a node id to its title in the queued workflow. Compound ids
// like "57:8" from expanded subgraphs fall back to their parent node.
func (t *promptTracker) nodeTitle(nodeID string) string {
	if t.item.Workflow == nil {
		return nodeID
	}
	if n := t.item.Workflow.GetNodeById(nodeID); n != nil && n.Title() != "" {
		return n.Title()
	}
	if parent, _, ok := strings.Cut(nodeID, ":"); ok {
		if n := t.item.Workflow.GetNodeById(parent); n != nil && n.Title() != "" {
			return n.Title()
		}
	}
	return nodeID
}
