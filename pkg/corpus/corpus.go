// Package corpus implements the bulk operations over stored images and
// labels: listing, archive export and best-effort deletion.
//
// It reads only committed files and never coordinates with running
// pipelines; a label committed mid-export may or may not be included.
package corpus

import (
	"go.uber.org/zap"

	"github.com/menta2k/image-labeler/pkg/errs"
	"github.com/menta2k/image-labeler/pkg/storage"
	"github.com/menta2k/image-labeler/pkg/types"
)

// Corpus joins the upload area with the label area
type Corpus struct {
	images    *storage.Images
	labels    *storage.Labels
	log       *zap.Logger
	urlPrefix string
}

// New creates a Corpus. urlPrefix is the public prefix of stored images.
func New(images *storage.Images, labels *storage.Labels, urlPrefix string, log *zap.Logger) *Corpus {
	if log == nil {
		log = zap.NewNop()
	}
	if urlPrefix == "" {
		urlPrefix = "/uploads"
	}
	return &Corpus{images: images, labels: labels, log: log, urlPrefix: urlPrefix}
}

// List returns one entry per stored image in directory order. Orphaned
// labels are ignored.
func (c *Corpus) List() ([]types.CorpusEntry, error) {
	images, err := c.images.List()
	if err != nil {
		return nil, err
	}
	labels, err := c.labels.List()
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		have[l] = struct{}{}
	}

	entries := make([]types.CorpusEntry, 0, len(images))
	for _, img := range images {
		entry := types.CorpusEntry{
			ImageFilename: img,
			ImageURL:      storage.URLFor(c.urlPrefix, img),
		}
		if name := storage.LabelNameFor(img); hasKey(have, name) {
			entry.LabelFilename = &name
			entry.HasLabel = true
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func hasKey(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}

// DeleteOne removes an image and its label. Both removals are attempted
// independently; failures are logged, never returned. Only an invalid name
// is reported, as a validation error.
func (c *Corpus) DeleteOne(imageName string) error {
	if err := storage.ValidateName(imageName); err != nil {
		return err
	}
	img := c.images.Remove(imageName)
	lbl := c.labels.Delete(imageName)
	c.logRemoval("image", img)
	c.logRemoval("label", lbl)
	return nil
}

func (c *Corpus) logRemoval(kind string, r storage.RemoveResult) {
	if r.Outcome == storage.Failed {
		c.log.Warn("best-effort delete failed",
			zap.String("kind", kind),
			zap.String("name", r.Name),
			zap.Stringer("outcome", r.Outcome),
			zap.Error(r.Err))
		return
	}
	c.log.Debug("delete",
		zap.String("kind", kind),
		zap.String("name", r.Name),
		zap.Stringer("outcome", r.Outcome))
}

// DeleteMany applies DeleteOne to every name. An empty list is rejected.
// The envelope reports that the batch ran; callers inspect the items.
func (c *Corpus) DeleteMany(names []string) (types.BatchResult, error) {
	if len(names) == 0 {
		return types.BatchResult{}, errs.Validation("filenames", "must be a non-empty list")
	}
	results := make([]types.ItemResult, 0, len(names))
	for _, name := range names {
		item := types.ItemResult{Filename: name, Success: true}
		if err := c.DeleteOne(name); err != nil {
			item.Success = false
			item.Error = err.Error()
		}
		results = append(results, item)
	}
	return types.BatchResult{Success: true, Results: results}, nil
}
