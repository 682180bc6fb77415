// Package storage manages the two on-disk areas of the corpus: the upload
// area holding images and the label area holding one text file per image.
//
// The only link between the areas is the naming convention implemented by
// LabelNameFor. Entries whose names start with a dot are private to this
// package (in-flight atomic writes) and are never listed.
package storage

import (
	"errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/menta2k/image-labeler/pkg/errs"
)

// LabelExt is the extension of label files
const LabelExt = ".txt"

// LabelNameFor derives the label filename for an image filename.
func LabelNameFor(imageName string) string {
	return strings.TrimSuffix(imageName, filepath.Ext(imageName)) + LabelExt
}

// URLFor returns the public URL of a stored image under prefix
func URLFor(prefix, imageName string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + url.PathEscape(imageName)
}

// ValidateName rejects names that are empty, hidden or carry any path
// component, so a name can never escape its storage area.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errs.Validation("filename", "must not be empty")
	case strings.ContainsAny(name, `/\`) || name != filepath.Base(name):
		return errs.Validation("filename", "must not contain path separators")
	case strings.HasPrefix(name, "."):
		return errs.Validation("filename", "must not start with a dot")
	}
	return nil
}

// area is one storage directory
type area struct {
	dir  string
	kind string
}

func (a area) path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(a.dir, name), nil
}

// list returns the regular, non-hidden files of the area in directory order
// accepted by keep. A missing directory is an empty area.
func (a area) list(keep func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, &errs.StorageError{Op: "list", Path: a.dir, Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		if keep != nil && !keep(name) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func (a area) open(name string) (*os.File, error) {
	p, err := a.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &errs.NotFoundError{Kind: a.kind, Name: name, Err: err}
		}
		return nil, &errs.StorageError{Op: "open", Path: p, Err: err}
	}
	return f, nil
}

func (a area) read(name string) ([]byte, error) {
	f, err := a.open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &errs.StorageError{Op: "read", Path: f.Name(), Err: err}
	}
	return data, nil
}

// writeAtomic streams r into name through a hidden temp file and a rename,
// so readers see either the previous content or the complete new content.
func (a area) writeAtomic(name string, r io.Reader) (int64, error) {
	p, err := a.path(name)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(a.dir, ".tmp-"+name+"-*")
	if err != nil {
		return 0, &errs.StorageError{Op: "create", Path: p, Err: err}
	}
	tmpName := tmp.Name()
	fail := func(op string, err error) (int64, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return 0, &errs.StorageError{Op: op, Path: p, Err: err}
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		return fail("write", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return fail("chmod", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return 0, &errs.StorageError{Op: "close", Path: p, Err: err}
	}
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return 0, &errs.StorageError{Op: "rename", Path: p, Err: err}
	}
	return n, nil
}

func (a area) remove(name string) RemoveResult {
	p, err := a.path(name)
	if err != nil {
		return RemoveResult{Name: name, Outcome: Failed, Err: err}
	}
	return removeFile(name, p)
}
