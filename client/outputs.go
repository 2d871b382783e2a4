package client

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// FetchOutputs retrieves the history of a finished prompt and downloads every
// file its output nodes produced. Nodes come back ordered by node id and the
// files of each node in the order the server listed them. Each file is
// requested exactly once; the first failed download fails the whole call.
func (c *ComfyClient) FetchOutputs(ctx context.Context, promptID string) ([]NodeArtifacts, error) {
	history, err := c.GetHistory(ctx, promptID)
	if err != nil {
		return nil, err
	}
	return c.FetchArtifacts(ctx, history.Manifest())
}

// FetchArtifacts downloads the files listed in a manifest
func (c *ComfyClient) FetchArtifacts(ctx context.Context, manifest []ManifestEntry) ([]NodeArtifacts, error) {
	retv := make([]NodeArtifacts, len(manifest))
	for i, entry := range manifest {
		retv[i] = NodeArtifacts{
			NodeID:    entry.NodeID,
			Artifacts: make([]Artifact, len(entry.Files)),
		}
	}

	fetch := func(ctx context.Context, i, j int) error {
		out := manifest[i].Files[j]
		data, err := c.GetImage(ctx, out)
		if err != nil {
			return fmt.Errorf("fetching %s from node %s: %w", out.Filename, manifest[i].NodeID, err)
		}
		slog.Debug("Fetched artifact", "node_id", manifest[i].NodeID, "filename", out.Filename, "bytes", len(data))
		retv[i].Artifacts[j] = Artifact{DataOutput: out, Data: data}
		return nil
	}

	if c.fetchConcurrency <= 1 {
		for i := range manifest {
			for j := range manifest[i].Files {
				if err := fetch(ctx, i, j); err != nil {
					return nil, err
				}
			}
		}
		return retv, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fetchConcurrency)
	for i := range manifest {
		for j := range manifest[i].Files {
			i, j := i, j
			g.Go(func() error {
				return fetch(gctx, i, j)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return retv, nil
}
