// Package imagelabeler derives descriptive labels for uploaded images.
//
// Each stored image runs through a two-stage model pipeline: a vision model
// describes the image, a text model translates the description, and the
// normalized result is written as a text file next to the corpus. The corpus
// of images and labels can then be listed, exported as a zip archive,
// uploaded to S3 and pruned.
//
// Basic usage:
//
//	cfg := config.Default()
//	labeler, err := imagelabeler.New(ctx, cfg, zap.NewNop())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer labeler.Close()
//
//	result, err := labeler.Pipeline.Run(ctx, "photo.jpg")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(result.TranslatedLabel)
//
// The package wires these components:
//
//  1. Model client (pkg/client) over an Ollama or llama.cpp backend
//  2. Pipeline (pkg/pipeline): recognize, translate, normalize, persist
//  3. Corpus (pkg/corpus): list, export and delete
//  4. Journal (pkg/journal) and S3 publisher (pkg/publish), when configured
package imagelabeler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/menta2k/image-labeler/internal/config"
	"github.com/menta2k/image-labeler/pkg/client"
	"github.com/menta2k/image-labeler/pkg/corpus"
	"github.com/menta2k/image-labeler/pkg/journal"
	"github.com/menta2k/image-labeler/pkg/llamacpp"
	"github.com/menta2k/image-labeler/pkg/ollama"
	"github.com/menta2k/image-labeler/pkg/pipeline"
	"github.com/menta2k/image-labeler/pkg/processing"
	"github.com/menta2k/image-labeler/pkg/publish"
	"github.com/menta2k/image-labeler/pkg/storage"
	"github.com/menta2k/image-labeler/pkg/types"
)

// Version of the image labeler
const Version = "1.0.0"

// Labeler holds the wired components of one deployment
type Labeler struct {
	Config    *config.Config
	Images    *storage.Images
	Labels    *storage.Labels
	Pipeline  *pipeline.Orchestrator
	Corpus    *corpus.Corpus
	Journal   journal.Recorder
	Publisher *publish.S3Publisher // nil unless S3 is configured

	db *sql.DB
}

// NewBackend creates the model backend selected by cfg.Backend
func NewBackend(cfg config.ModelConfig) (client.Backend, error) {
	switch cfg.Backend {
	case "ollama":
		c, err := ollama.NewClient(cfg.URL, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(cfg.URL, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown model backend %q", cfg.Backend)
}

// NewModelClient creates the recognition/translation client for cfg
func NewModelClient(cfg config.ModelConfig) (*client.Client, error) {
	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	return client.New(backend, client.Config{
		VisionModel: cfg.VisionModel,
		TextModel:   cfg.TextModel,
		Sampling: types.Sampling{
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			MaxTokens:   cfg.MaxTokens,
		},
		Timeout: cfg.Timeout,
	}), nil
}

// New validates cfg and wires every component. The journal and the S3
// publisher are created only when configured.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Labeler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	model, err := NewModelClient(cfg.Model)
	if err != nil {
		return nil, err
	}
	return NewWithModel(ctx, cfg, model, log)
}

// NewWithModel wires every component around an existing model client
func NewWithModel(ctx context.Context, cfg *config.Config, model client.ModelClient, log *zap.Logger) (*Labeler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Labeler{
		Config:  cfg,
		Images:  storage.NewImages(cfg.Storage.UploadDir),
		Labels:  storage.NewLabels(cfg.Storage.LabelDir),
		Journal: journal.Nop{},
	}

	if cfg.JournalEnabled() {
		db, err := journal.Open(ctx, cfg.Journal.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		pg := journal.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("journal schema: %w", err)
		}
		l.db = db
		l.Journal = pg
	}

	l.Pipeline = pipeline.New(model, l.Images, l.Labels, pipeline.Options{
		Processor:        processing.NewProcessor(cfg.Model.MaxImageDimension, cfg.Model.JPEGQuality),
		Recorder:         l.Journal,
		Logger:           log.Named("pipeline"),
		ImageURLPrefix:   cfg.Storage.ImageURLPrefix,
		MaxConcurrent:    cfg.Pipeline.MaxConcurrent,
		BatchConcurrency: cfg.Pipeline.BatchConcurrency,
	})
	l.Corpus = corpus.New(l.Images, l.Labels, cfg.Storage.ImageURLPrefix, log.Named("corpus"))

	if cfg.S3Enabled() {
		p, err := publish.NewS3(ctx, publish.Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Prefix:          cfg.S3.Prefix,
			CreateBucket:    cfg.S3.CreateBucket,
		}, l.Corpus, log.Named("publish"))
		if err != nil {
			_ = l.Close()
			return nil, fmt.Errorf("s3 publisher: %w", err)
		}
		l.Publisher = p
	}

	return l, nil
}

// Close releases the journal database, if any
func (l *Labeler) Close() error {
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// ErrS3Disabled is returned by PublishSnapshot when no bucket is configured
var ErrS3Disabled = errors.New("s3 export is not configured")

// PublishSnapshot uploads a corpus archive to the configured bucket
func (l *Labeler) PublishSnapshot(ctx context.Context) (*publish.Snapshot, error) {
	if l.Publisher == nil {
		return nil, ErrS3Disabled
	}
	return l.Publisher.Publish(ctx)
}
