// Package pipeline derives a label for a stored image: recognition, then
// translation, then normalization, then an atomic write to the label area.
//
// A label file is written only after both model calls succeed, so a failed
// run never leaves a partial label behind.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/menta2k/image-labeler/pkg/client"
	"github.com/menta2k/image-labeler/pkg/errs"
	"github.com/menta2k/image-labeler/pkg/journal"
	"github.com/menta2k/image-labeler/pkg/normalize"
	"github.com/menta2k/image-labeler/pkg/processing"
	"github.com/menta2k/image-labeler/pkg/storage"
	"github.com/menta2k/image-labeler/pkg/types"
)

// DefaultBatchConcurrency bounds RunMany when Options leaves it unset
const DefaultBatchConcurrency = 2

const recordTimeout = 5 * time.Second

// Options holds the optional collaborators of an Orchestrator
type Options struct {
	// Processor prepares image bytes before recognition. Nil sends stored bytes as-is.
	Processor *processing.Processor
	// Recorder journals every run. Nil disables the journal.
	Recorder journal.Recorder
	Logger   *zap.Logger
	// ImageURLPrefix is prepended to image names in results. Defaults to /uploads.
	ImageURLPrefix string
	// MaxConcurrent bounds in-flight runs and translations. Zero means unbounded.
	MaxConcurrent int
	// BatchConcurrency bounds RunMany. Zero means DefaultBatchConcurrency.
	BatchConcurrency int
}

// Orchestrator runs the labeling pipeline
type Orchestrator struct {
	model     client.ModelClient
	images    *storage.Images
	labels    *storage.Labels
	processor *processing.Processor
	recorder  journal.Recorder
	log       *zap.Logger
	urlPrefix string
	limiter   *semaphore.Weighted
	batch     int
	now       func() time.Time
}

// New creates an Orchestrator over the given model client and storage areas
func New(model client.ModelClient, images *storage.Images, labels *storage.Labels, opts Options) *Orchestrator {
	o := &Orchestrator{
		model:     model,
		images:    images,
		labels:    labels,
		processor: opts.Processor,
		recorder:  opts.Recorder,
		log:       opts.Logger,
		urlPrefix: opts.ImageURLPrefix,
		batch:     opts.BatchConcurrency,
		now:       time.Now,
	}
	if o.recorder == nil {
		o.recorder = journal.Nop{}
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.urlPrefix == "" {
		o.urlPrefix = "/uploads"
	}
	if o.batch <= 0 {
		o.batch = DefaultBatchConcurrency
	}
	if opts.MaxConcurrent > 0 {
		o.limiter = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return o
}

// ImageURL returns the public URL of a stored image
func (o *Orchestrator) ImageURL(imageName string) string {
	return storage.URLFor(o.urlPrefix, imageName)
}

func (o *Orchestrator) acquire(ctx context.Context) (func(), error) {
	if o.limiter == nil {
		return func() {}, nil
	}
	if err := o.limiter.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { o.limiter.Release(1) }, nil
}

// Run labels one stored image. Failures are returned as *RunError wrapping
// a NotFoundError, ModelError or StorageError.
func (o *Orchestrator) Run(ctx context.Context, imageName string) (*types.PipelineResult, error) {
	started := o.now()
	r := &run{image: imageName, state: Pending}

	res, runErr := o.run(ctx, r)
	o.record(ctx, r, runErr, started)

	if runErr != nil {
		o.log.Warn("labeling failed",
			zap.String("image", imageName),
			zap.String("step", string(runErr.Step)),
			zap.Stringer("state", runErr.State),
			zap.Error(runErr.Err))
		return nil, runErr
	}
	o.log.Info("image labeled",
		zap.String("image", imageName),
		zap.String("label", res.LabelFilename),
		zap.Duration("took", o.now().Sub(started)))
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, r *run) (*types.PipelineResult, *RunError) {
	release, err := o.acquire(ctx)
	if err != nil {
		return nil, r.fail(StepAdmit, err)
	}
	defer release()

	data, err := o.images.Read(r.image)
	if err != nil {
		return nil, r.fail(StepLoad, err)
	}
	data = o.prepare(r.image, data)

	// Pending → Recognized
	raw, err := o.model.Recognize(ctx, data)
	if err != nil {
		return nil, r.fail(StepRecognize, err)
	}
	r.raw = raw
	r.state = Recognized

	// Recognized → Translated
	translated, err := o.model.Translate(ctx, raw)
	if err != nil {
		return nil, r.fail(StepTranslate, err)
	}
	r.translated = normalize.Normalize(translated)
	r.state = Translated

	// Translated → Persisted
	labelFile, err := o.labels.Save(r.image, r.translated)
	if err != nil {
		return nil, r.fail(StepPersist, err)
	}
	r.labelFile = labelFile
	r.state = Persisted

	return &types.PipelineResult{
		ImageFilename:   r.image,
		LabelFilename:   r.labelFile,
		OriginalLabel:   r.raw,
		TranslatedLabel: r.translated,
		ImageURL:        o.ImageURL(r.image),
	}, nil
}

// prepare downscales the image for the model. An image the processor cannot
// decode is sent unchanged and left for the model to judge.
func (o *Orchestrator) prepare(imageName string, data []byte) []byte {
	if o.processor == nil || !o.processor.Enabled() {
		return data
	}
	prepared, err := o.processor.PrepareForModel(data)
	if err != nil {
		o.log.Debug("sending original image bytes",
			zap.String("image", imageName), zap.Error(err))
		return data
	}
	return prepared
}

func (o *Orchestrator) record(ctx context.Context, r *run, runErr *RunError, started time.Time) {
	entry := types.Run{
		ImageFilename:   r.image,
		Stage:           r.state.String(),
		Success:         runErr == nil,
		OriginalLabel:   r.raw,
		TranslatedLabel: r.translated,
		StartedAt:       started.UTC(),
		FinishedAt:      o.now().UTC(),
	}
	if runErr != nil {
		entry.Stage = string(runErr.Step)
		entry.Error = runErr.Err.Error()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := o.recorder.Record(ctx, entry); err != nil {
		o.log.Warn("journal record failed", zap.String("image", r.image), zap.Error(err))
	}
}

// Translate runs the manual translation entry point: the text model followed
// by the normalizer. Empty input is rejected.
func (o *Orchestrator) Translate(ctx context.Context, text string) (types.TranslateResult, error) {
	original := strings.TrimSpace(text)
	if original == "" {
		return types.TranslateResult{}, errs.Validation("text", "text to translate is required")
	}

	release, err := o.acquire(ctx)
	if err != nil {
		return types.TranslateResult{}, err
	}
	defer release()

	raw, err := o.model.Translate(ctx, original)
	if err != nil {
		return types.TranslateResult{}, err
	}
	return types.TranslateResult{Original: original, Translated: normalize.Normalize(raw)}, nil
}

// Recent returns the latest journaled runs
func (o *Orchestrator) Recent(ctx context.Context, limit int) ([]types.Run, error) {
	return o.recorder.Recent(ctx, limit)
}

// StepOf reports the failing step of a pipeline error, or "" when err did
// not come from a run.
func StepOf(err error) Step {
	var re *RunError
	if errors.As(err, &re) {
		return re.Step
	}
	return ""
}
