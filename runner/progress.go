package runner

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/richinsley/comfybatch/client"
)

const progressBarWidth = 50

// progressHandlers logs a job's lifecycle and, when w is set, draws a progress
// bar for each node that reports progress.
func progressHandlers(w io.Writer, job string) *client.MessageHandlers {
	handlers := client.DefaultMessageHandlers().
		WithStartedHandler(func(msg *client.PromptMessageStarted) {
			slog.Info("Execution started", "job", job, "prompt_id", msg.PromptID)
		}).
		WithCachedHandler(func(msg *client.PromptMessageCached) {
			slog.Debug("Cached nodes", "job", job, "nodes", msg.Nodes)
		})
	if w == nil {
		return handlers
	}

	var bar *progressbar.ProgressBar
	var currentNodeTitle string
	finish := func() {
		if bar != nil {
			_ = bar.Finish()
			bar = nil
		}
	}

	return handlers.
		WithExecutingHandler(func(msg *client.PromptMessageExecuting) {
			finish()
			currentNodeTitle = msg.Title
			slog.Debug("Executing node", "job", job, "node_id", msg.NodeID, "title", msg.Title)
		}).
		WithProgressHandler(func(msg *client.PromptMessageProgress) {
			if msg.Max <= 0 {
				return
			}
			if bar == nil || bar.GetMax() != msg.Max {
				finish()
				bar = progressbar.NewOptions(msg.Max,
					progressbar.OptionSetWriter(w),
					progressbar.OptionSetDescription(currentNodeTitle),
					progressbar.OptionSetWidth(progressBarWidth),
					progressbar.OptionShowCount(),
					progressbar.OptionOnCompletion(func() {
						fmt.Fprintln(w)
					}),
				)
			}
			_ = bar.Set(msg.Value)
		}).
		WithCompleteHandler(finish)
}
