package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/richinsley/comfybatch/graphapi"
)

// MessageHandlers defines optional callback functions for handling the messages of a
// prompt. All handlers are optional - only provide handlers for the messages you care about.
type MessageHandlers struct {
	// OnStarted is called when execution begins
	OnStarted func(*PromptMessageStarted)

	// OnCached is called with the nodes the server will not re-run
	OnCached func(*PromptMessageCached)

	// OnExecuting is called when a node starts executing
	OnExecuting func(*PromptMessageExecuting)

	// OnProgress is called with progress updates during node execution
	OnProgress func(*PromptMessageProgress)

	// OnData is called when output data is available
	OnData func(*PromptMessageData)

	// OnExecutionSuccess is called when the server reports success, just before the final executing message
	OnExecutionSuccess func(*PromptMessageExecutionSuccess)

	// OnStopped is called when execution stops (success, error, or interruption)
	OnStopped func(*PromptMessageStopped)

	// OnError is called if there was an exception during execution
	// This is called before OnStopped when an error occurs
	OnError func(*PromptMessageStoppedException)

	// OnComplete is called after the wait returns, regardless of success or failure
	OnComplete func()
}

// DefaultMessageHandlers returns MessageHandlers with sensible defaults:
// - Logs started, executing, and stopped messages
// - Logs errors
// - Does NOT include progress bars (add your own if needed)
func DefaultMessageHandlers() *MessageHandlers {
	return &MessageHandlers{
		OnStarted: func(msg *PromptMessageStarted) {
			slog.Info("Execution started", "prompt_id", msg.PromptID)
		},
		OnExecuting: func(msg *PromptMessageExecuting) {
			slog.Info("Executing node", "node_id", msg.NodeID, "title", msg.Title)
		},
		OnError: func(err *PromptMessageStoppedException) {
			slog.Error("Execution error",
				"node_id", err.NodeID,
				"node_type", err.NodeType,
				"error", err.ExceptionMessage,
			)
		},
		OnStopped: func(msg *PromptMessageStopped) {
			if msg.Exception == nil && msg.Reason == QueuedItemStoppedReasonFinished {
				slog.Info("Execution completed successfully")
			}
		},
	}
}

// WithStartedHandler adds a started handler (builder pattern)
func (h *MessageHandlers) WithStartedHandler(fn func(*PromptMessageStarted)) *MessageHandlers {
	h.OnStarted = fn
	return h
}

// WithCachedHandler adds a cached handler (builder pattern)
func (h *MessageHandlers) WithCachedHandler(fn func(*PromptMessageCached)) *MessageHandlers {
	h.OnCached = fn
	return h
}

// WithExecutingHandler adds an executing handler (builder pattern)
func (h *MessageHandlers) WithExecutingHandler(fn func(*PromptMessageExecuting)) *MessageHandlers {
	h.OnExecuting = fn
	return h
}

// WithProgressHandler adds a progress handler (builder pattern)
func (h *MessageHandlers) WithProgressHandler(fn func(*PromptMessageProgress)) *MessageHandlers {
	h.OnProgress = fn
	return h
}

// WithDataHandler adds a data handler (builder pattern)
func (h *MessageHandlers) WithDataHandler(fn func(*PromptMessageData)) *MessageHandlers {
	h.OnData = fn
	return h
}

// WithExecutionSuccessHandler adds an execution success handler (builder pattern)
func (h *MessageHandlers) WithExecutionSuccessHandler(fn func(*PromptMessageExecutionSuccess)) *MessageHandlers {
	h.OnExecutionSuccess = fn
	return h
}

// WithStoppedHandler adds a stopped handler (builder pattern)
func (h *MessageHandlers) WithStoppedHandler(fn func(*PromptMessageStopped)) *MessageHandlers {
	h.OnStopped = fn
	return h
}

// WithErrorHandler adds an error handler (builder pattern)
func (h *MessageHandlers) WithErrorHandler(fn func(*PromptMessageStoppedException)) *MessageHandlers {
	h.OnError = fn
	return h
}

// WithCompleteHandler adds a complete handler (builder pattern)
func (h *MessageHandlers) WithCompleteHandler(fn func()) *MessageHandlers {
	h.OnComplete = fn
	return h
}

// dispatch hands a prompt message to its handler. It reports whether the message
// ended the prompt, and the error the prompt ended with.
func (h *MessageHandlers) dispatch(msg PromptMessage) (bool, error) {
	switch msg.Type {
	case "started":
		if h.OnStarted != nil {
			h.OnStarted(msg.ToPromptMessageStarted())
		}

	case "cached":
		if h.OnCached != nil {
			h.OnCached(msg.ToPromptMessageCached())
		}

	case "executing":
		if h.OnExecuting != nil {
			h.OnExecuting(msg.ToPromptMessageExecuting())
		}

	case "progress":
		if h.OnProgress != nil {
			h.OnProgress(msg.ToPromptMessageProgress())
		}

	case "data":
		if h.OnData != nil {
			h.OnData(msg.ToPromptMessageData())
		}

	case "execution_success":
		if h.OnExecutionSuccess != nil {
			h.OnExecutionSuccess(msg.ToPromptMessageExecutionSuccess())
		}

	case "stopped":
		stopped := msg.ToPromptMessageStopped()

		var executionError error
		switch stopped.Reason {
		case QueuedItemStoppedReasonError:
			if stopped.Exception != nil {
				if h.OnError != nil {
					h.OnError(stopped.Exception)
				}
				executionError = &ExecutionError{
					PromptID:  stopped.QueueItem.PromptID,
					Exception: *stopped.Exception,
				}
			}
		case QueuedItemStoppedReasonInterrupted:
			executionError = ErrInterrupted
		}

		if h.OnStopped != nil {
			h.OnStopped(stopped)
		}
		return true, executionError

	default:
		slog.Warn("Unknown message type received", "type", msg.Type)
	}
	return false, nil
}

// QueuePromptAndWait queues a workflow and blocks until the server finished it.
// The websocket must be connected first; events that arrive before QueuePrompt
// returns are buffered by the connection and not lost.
//
// Example:
//
//	item, err := c.QueuePromptAndWait(ctx, wf,
//	    client.DefaultMessageHandlers().
//	        WithProgressHandler(func(msg *client.PromptMessageProgress) {
//	            // update a progress bar
//	        }),
//	)
func (c *ComfyClient) QueuePromptAndWait(ctx context.Context, wf *graphapi.Workflow, handlers *MessageHandlers) (*QueueItem, error) {
	item, err := c.QueuePrompt(ctx, wf)
	if err != nil {
		return nil, fmt.Errorf("failed to queue prompt: %w", err)
	}

	return item, c.WaitForPrompt(ctx, item, handlers)
}
