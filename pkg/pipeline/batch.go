package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/image-labeler/pkg/storage"
	"github.com/menta2k/image-labeler/pkg/types"
)

// Unlabeled returns the stored images with no label file, in directory order.
func (o *Orchestrator) Unlabeled() ([]string, error) {
	images, err := o.images.List()
	if err != nil {
		return nil, err
	}
	labels, err := o.labels.List()
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		have[l] = struct{}{}
	}

	out := make([]string, 0, len(images))
	for _, img := range images {
		if _, ok := have[storage.LabelNameFor(img)]; !ok {
			out = append(out, img)
		}
	}
	return out, nil
}

// RunMany labels every named image, or every unlabeled image when names is
// empty. Items run independently; one failure never stops the others.
// Results keep the order of names.
func (o *Orchestrator) RunMany(ctx context.Context, names []string) (types.BatchResult, error) {
	if len(names) == 0 {
		var err error
		if names, err = o.Unlabeled(); err != nil {
			return types.BatchResult{}, err
		}
	}

	results := make([]types.ItemResult, len(names))
	var g errgroup.Group
	g.SetLimit(o.batch)
	for i, name := range names {
		g.Go(func() error {
			results[i] = o.runItem(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	o.log.Info("batch labeling finished",
		zap.Int("total", len(results)), zap.Int("failed", failed))

	return types.BatchResult{Success: true, Results: results}, nil
}

func (o *Orchestrator) runItem(ctx context.Context, name string) types.ItemResult {
	if err := ctx.Err(); err != nil {
		return types.ItemResult{Filename: name, Stage: string(StepAdmit), Error: err.Error()}
	}
	if _, err := o.Run(ctx, name); err != nil {
		return types.ItemResult{Filename: name, Stage: string(StepOf(err)), Error: err.Error()}
	}
	return types.ItemResult{Filename: name, Success: true}
}
