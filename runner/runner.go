// Package runner executes a batch of jobs against a ComfyUI server, one prompt at a time.
package runner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/richinsley/comfybatch/client"
	"github.com/richinsley/comfybatch/compose"
	"github.com/richinsley/comfybatch/config"
	"github.com/richinsley/comfybatch/graphapi"
)

// Client is the part of *client.ComfyClient a Runner needs
type Client interface {
	QueuePrompt(ctx context.Context, wf *graphapi.Workflow) (*client.QueueItem, error)
	WaitForPrompt(ctx context.Context, item *client.QueueItem, handlers *client.MessageHandlers) error
	FetchOutputs(ctx context.Context, promptID string) ([]client.NodeArtifacts, error)
	UploadFileFromPath(ctx context.Context, filePath string, overwrite bool, filetype client.ImageType, subfolder string) (*client.UploadedFile, error)
	EraseHistoryItem(ctx context.Context, promptID string) error
}

// Composite is the side by side image of one output node
type Composite struct {
	NodeID string
	Image  *image.RGBA
}

// JobResult describes a finished job
type JobResult struct {
	Index          int
	Name           string
	PromptID       string
	Seed           uint64
	FilenamePrefix string
	Outputs        []client.NodeArtifacts
	Composites     []Composite
	Duration       time.Duration
}

type Runner struct {
	client       Client
	viewer       compose.Viewer
	progress     io.Writer
	eraseHistory bool
}

type Option func(*Runner)

// WithViewer sets where composites are shown, NopViewer by default
func WithViewer(v compose.Viewer) Option {
	return func(r *Runner) {
		r.viewer = v
	}
}

// WithProgress draws per-node progress bars on w
func WithProgress(w io.Writer) Option {
	return func(r *Runner) {
		r.progress = w
	}
}

// WithEraseHistory removes each prompt from the server history once its outputs are fetched
func WithEraseHistory(erase bool) Option {
	return func(r *Runner) {
		r.eraseHistory = erase
	}
}

func New(c Client, opts ...Option) *Runner {
	r := &Runner{
		client: c,
		viewer: compose.NopViewer{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the jobs of b in order. Every job starts from its own copy of
// base, so nothing one job sets leaks into the next. The first failing job
// stops the batch; the results of the jobs before it are returned with the error.
func (r *Runner) Run(ctx context.Context, b *config.Batch, base *graphapi.Workflow) ([]JobResult, error) {
	results := make([]JobResult, 0, len(b.Jobs))
	for i := range b.Jobs {
		res, err := r.RunJob(ctx, b, base, i)
		if err != nil {
			return results, fmt.Errorf("job %s: %w", b.Jobs[i].DisplayName(i), err)
		}
		results = append(results, *res)
	}
	return results, nil
}

// RunJob executes the job at index
func (r *Runner) RunJob(ctx context.Context, b *config.Batch, base *graphapi.Workflow, index int) (*JobResult, error) {
	start := time.Now()
	job := &b.Jobs[index]
	name := job.DisplayName(index)

	wf, res, err := r.Prepare(ctx, b, base, index)
	if err != nil {
		return nil, err
	}

	item, err := r.client.QueuePrompt(ctx, wf)
	if err != nil {
		return nil, err
	}
	res.PromptID = item.PromptID
	slog.Info("Queued prompt", "job", name, "prompt_id", item.PromptID, "number", item.Number)

	if err := r.client.WaitForPrompt(ctx, item, progressHandlers(r.progress, name)); err != nil {
		return nil, err
	}

	res.Outputs, err = r.client.FetchOutputs(ctx, item.PromptID)
	if err != nil {
		return nil, err
	}

	if r.eraseHistory {
		if err := r.client.EraseHistoryItem(ctx, item.PromptID); err != nil {
			slog.Warn("Failed to erase history", "job", name, "prompt_id", item.PromptID, "error", err)
		}
	}

	for _, node := range res.Outputs {
		canvas, err := composeNode(node)
		if errors.Is(err, compose.ErrNoImages) {
			slog.Warn("Output node has no decodable images", "job", name, "node_id", node.NodeID)
			continue
		}
		if err != nil {
			return nil, err
		}
		res.Composites = append(res.Composites, Composite{NodeID: node.NodeID, Image: canvas})

		viewName := fmt.Sprintf("%s-node-%s", res.FilenamePrefix, node.NodeID)
		if res.FilenamePrefix == "" {
			viewName = fmt.Sprintf("job-%d-node-%s", index+1, node.NodeID)
		}
		if err := r.viewer.Show(viewName, canvas); err != nil {
			return nil, fmt.Errorf("showing composite of node %s: %w", node.NodeID, err)
		}
	}

	res.Duration = time.Since(start)
	slog.Info("Job finished", "job", name, "prompt_id", res.PromptID, "outputs", len(res.Outputs), "duration", res.Duration)
	return res, nil
}

// Prepare builds the workflow of the job at index: a copy of base with the batch
// defaults, the job's overrides, its bound fields and its uploads applied in that order.
func (r *Runner) Prepare(ctx context.Context, b *config.Batch, base *graphapi.Workflow, index int) (*graphapi.Workflow, *JobResult, error) {
	job := &b.Jobs[index]
	wf := base.Clone()
	res := &JobResult{Index: index, Name: job.DisplayName(index)}

	for _, o := range b.Defaults {
		if err := wf.SetInputs(o.Node, o.Inputs); err != nil {
			return nil, nil, fmt.Errorf("applying defaults: %w", err)
		}
	}
	for _, o := range job.Overrides {
		if err := wf.SetInputs(o.Node, o.Inputs); err != nil {
			return nil, nil, fmt.Errorf("applying overrides: %w", err)
		}
	}

	if bind := b.Bindings.Prompt; bind != nil && job.Prompt != "" {
		if err := wf.SetInput(bind.Node, bind.Input, job.Prompt); err != nil {
			return nil, nil, fmt.Errorf("binding prompt: %w", err)
		}
	}
	if bind := b.Bindings.Seed; bind != nil {
		res.Seed = job.ResolveSeed()
		if err := wf.SetInput(bind.Node, bind.Input, res.Seed); err != nil {
			return nil, nil, fmt.Errorf("binding seed: %w", err)
		}
	}
	if bind := b.Bindings.FilenamePrefix; bind != nil {
		res.FilenamePrefix = job.ResolveFilenamePrefix()
		if res.FilenamePrefix != "" {
			if err := wf.SetInput(bind.Node, bind.Input, res.FilenamePrefix); err != nil {
				return nil, nil, fmt.Errorf("binding filename prefix: %w", err)
			}
		}
	}

	for _, up := range job.Uploads {
		// fail before uploading anything the workflow has no place for
		if wf.NodeByTitle(up.Node).IsAbsent() {
			return nil, nil, fmt.Errorf("uploading %s: %w %q", up.Path, graphapi.ErrNodeNotFound, up.Node)
		}
		uploaded, err := r.client.UploadFileFromPath(ctx, b.Resolve(up.Path), up.Overwrite, client.InputImageType, up.Subfolder)
		if err != nil {
			return nil, nil, fmt.Errorf("uploading %s: %w", up.Path, err)
		}
		value := uploaded.Name
		if uploaded.Subfolder != "" {
			value = path.Join(uploaded.Subfolder, uploaded.Name)
		}
		if err := wf.SetInput(up.Node, up.Input, value); err != nil {
			return nil, nil, err
		}
		slog.Debug("Uploaded input", "path", up.Path, "name", value)
	}

	if err := wf.Validate(); err != nil {
		return nil, nil, err
	}
	return wf, res, nil
}

// composeNode decodes a node's artifacts and lays them out left to right.
// Artifacts that are not images (videos saved under "gifs", text) are skipped.
func composeNode(node client.NodeArtifacts) (*image.RGBA, error) {
	images := make([]image.Image, 0, len(node.Artifacts))
	for _, a := range node.Artifacts {
		img, err := compose.Decode(a.Data)
		if err != nil {
			slog.Warn("Skipping artifact", "node_id", node.NodeID, "filename", a.Filename, "error", err)
			continue
		}
		images = append(images, img)
	}
	return compose.Horizontal(images)
}
