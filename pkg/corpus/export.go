package corpus

import (
	"archive/zip"
	"compress/flate"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"go.uber.org/zap"
)

// ErrNothingToExport is returned by Export when both areas are empty
var ErrNothingToExport = errors.New("nothing to export")

const (
	imagesPrefix = "images/"
	labelsPrefix = "labels/"
)

// Manifest is the set of files an export will contain
type Manifest struct {
	Images []string
	Labels []string
}

func (m Manifest) Empty() bool { return len(m.Images) == 0 && len(m.Labels) == 0 }

// Snapshot lists the files currently committed in both areas
func (c *Corpus) Snapshot() (Manifest, error) {
	images, err := c.images.List()
	if err != nil {
		return Manifest{}, err
	}
	labels, err := c.labels.List()
	if err != nil {
		return Manifest{}, err
	}
	return Manifest{Images: images, Labels: labels}, nil
}

// Export writes a zip of the whole corpus to w, or returns
// ErrNothingToExport without writing anything.
func (c *Corpus) Export(w io.Writer) error {
	m, err := c.Snapshot()
	if err != nil {
		return err
	}
	if m.Empty() {
		return ErrNothingToExport
	}
	return c.WriteArchive(w, m)
}

// WriteArchive streams the files of m into a zip archive on w, images under
// images/ and labels under labels/, at maximum deflate compression. Files
// are copied one at a time. The first read failure aborts the archive.
func (c *Corpus) WriteArchive(w io.Writer, m Manifest) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, name := range m.Images {
		if err := addFile(zw, imagesPrefix+name, func() (*os.File, error) { return c.images.Open(name) }); err != nil {
			return err
		}
	}
	for _, name := range m.Labels {
		if err := addFile(zw, labelsPrefix+name, func() (*os.File, error) { return c.labels.Open(name) }); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}

	c.log.Info("corpus exported",
		zap.Int("images", len(m.Images)),
		zap.Int("labels", len(m.Labels)))
	return nil
}

func addFile(zw *zip.Writer, name string, open func() (*os.File, error)) error {
	f, err := open()
	if err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	header.Name = path.Clean(name)
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	return nil
}
