package client_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/richinsley/comfybatch/client"
	"github.com/richinsley/comfybatch/graphapi"
)

// Only handle what you care about
func ExampleComfyClient_QueuePromptAndWait() {
	ctx := context.Background()
	c := client.NewComfyClient("http", "127.0.0.1", 8188, nil)
	if err := c.Connect(ctx); err != nil {
		slog.Error("connect", "error", err)
		return
	}
	defer c.Close()

	wf, err := graphapi.NewWorkflowFromJsonFile("workflow_api.json")
	if err != nil {
		slog.Error("load", "error", err)
		return
	}

	_, err = c.QueuePromptAndWait(ctx, wf, &client.MessageHandlers{
		OnData: func(msg *client.PromptMessageData) {
			for _, image := range msg.Data["images"] {
				slog.Info("Got image", "filename", image.Filename)
			}
		},
	})
	if err != nil {
		slog.Error("run", "error", err)
	}
}

// Error handling with cleanup
func ExampleComfyClient_WaitForPrompt() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := client.NewComfyClient("http", "127.0.0.1", 8188, nil)
	c.SetWaitTimeout(10 * time.Minute)
	c.SetInterruptOnCancel(true)
	if err := c.Connect(ctx); err != nil {
		return
	}
	defer c.Close()

	wf, _ := graphapi.NewWorkflowFromPNGFile("ComfyUI_00001_.png")
	item, err := c.QueuePrompt(ctx, wf)
	var qerr *client.QueueError
	if errors.As(err, &qerr) {
		for id, ne := range qerr.NodeErrors {
			slog.Error("Rejected node", "node_id", id, "class_type", ne.ClassType)
		}
		return
	}

	tempFiles := []string{}
	err = c.WaitForPrompt(ctx, item, &client.MessageHandlers{
		OnData: func(msg *client.PromptMessageData) {
			for _, outputs := range msg.Data {
				for _, output := range outputs {
					if output.Type == "temp" {
						tempFiles = append(tempFiles, output.Filename)
					}
				}
			}
		},
		OnError: func(e *client.PromptMessageStoppedException) {
			slog.Error("Node failed", "node", e.NodeName, "type", e.NodeType, "error", e.ExceptionMessage)
			for _, line := range e.Traceback {
				slog.Debug(line)
			}
		},
		OnComplete: func() {
			for _, f := range tempFiles {
				os.Remove(f)
			}
		},
	})

	var execErr *client.ExecutionError
	switch {
	case errors.Is(err, client.ErrWaitTimeout):
		slog.Warn("Gave up waiting", "prompt_id", item.PromptID)
	case errors.As(err, &execErr):
		slog.Error("Execution failed", "node_id", execErr.Exception.NodeID)
	case errors.Is(err, client.ErrInterrupted):
		slog.Warn("Interrupted on the server")
	}
}

// Download everything a finished prompt produced, a few files at a time
func ExampleComfyClient_FetchOutputs() {
	ctx := context.Background()
	c := client.NewComfyClient("http", "127.0.0.1", 8188, nil)
	c.SetFetchConcurrency(4)

	outputs, err := c.FetchOutputs(ctx, "ed986d60-2a27-4d28-8871-2fdb36582902")
	if errors.Is(err, client.ErrPromptNotFound) {
		return
	}
	for _, node := range outputs {
		for _, a := range node.Artifacts {
			_ = os.WriteFile(a.Filename, a.Data, 0o644)
		}
	}
}
