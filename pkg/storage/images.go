package storage

import (
	"io"
	"os"

	"github.com/menta2k/image-labeler/internal/utils"
)

// Images is the upload area
type Images struct {
	area area
}

// NewImages returns the upload area rooted at dir
func NewImages(dir string) *Images {
	return &Images{area: area{dir: dir, kind: "image"}}
}

// Dir returns the area's directory
func (s *Images) Dir() string { return s.area.dir }

// List returns stored image filenames in directory order, filtered by the
// recognized image extensions.
func (s *Images) List() ([]string, error) {
	return s.area.list(utils.IsImageFile)
}

// Read returns the bytes of a stored image. A missing file yields
// *errs.NotFoundError.
func (s *Images) Read(name string) ([]byte, error) {
	return s.area.read(name)
}

// Open opens a stored image for streaming
func (s *Images) Open(name string) (*os.File, error) {
	return s.area.open(name)
}

// Save stores r under name and returns the number of bytes written
func (s *Images) Save(name string, r io.Reader) (int64, error) {
	return s.area.writeAtomic(name, r)
}

// Remove deletes a stored image; absence is not an error
func (s *Images) Remove(name string) RemoveResult {
	return s.area.remove(name)
}
