package storage

import (
	"os"
	"strings"
)

// Labels is the label area: one UTF-8 text file per labeled image
type Labels struct {
	area area
}

// NewLabels returns the label area rooted at dir
func NewLabels(dir string) *Labels {
	return &Labels{area: area{dir: dir, kind: "label"}}
}

// Dir returns the area's directory
func (s *Labels) Dir() string { return s.area.dir }

// Save writes the trimmed text as the label of imageName, replacing any
// earlier label, and returns the label filename.
func (s *Labels) Save(imageName, text string) (string, error) {
	if err := ValidateName(imageName); err != nil {
		return "", err
	}
	name := LabelNameFor(imageName)
	if _, err := s.area.writeAtomic(name, strings.NewReader(strings.TrimSpace(text))); err != nil {
		return "", err
	}
	return name, nil
}

// Read returns the content of a label file. A missing file yields
// *errs.NotFoundError.
func (s *Labels) Read(labelName string) (string, error) {
	data, err := s.area.read(labelName)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Open opens a label file for streaming
func (s *Labels) Open(labelName string) (*os.File, error) {
	return s.area.open(labelName)
}

// List returns every label-area file in directory order, orphans included
func (s *Labels) List() ([]string, error) {
	return s.area.list(nil)
}

// Delete removes the label of imageName; absence is not an error
func (s *Labels) Delete(imageName string) RemoveResult {
	if err := ValidateName(imageName); err != nil {
		return RemoveResult{Name: imageName, Outcome: Failed, Err: err}
	}
	return s.area.remove(LabelNameFor(imageName))
}
