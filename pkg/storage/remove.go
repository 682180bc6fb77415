package storage

import (
	"errors"
	"io/fs"
	"os"
)

// Outcome classifies a best-effort removal
type Outcome int

const (
	Removed Outcome = iota
	AlreadyAbsent
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Removed:
		return "removed"
	case AlreadyAbsent:
		return "already_absent"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// RemoveResult is the outcome of removing one file. Removed and
// AlreadyAbsent both leave the area tidy; only Failed carries an error.
type RemoveResult struct {
	Name    string
	Outcome Outcome
	Err     error
}

// OK reports whether the file is gone after the attempt
func (r RemoveResult) OK() bool {
	return r.Outcome != Failed
}

func removeFile(name, path string) RemoveResult {
	err := os.Remove(path)
	switch {
	case err == nil:
		return RemoveResult{Name: name, Outcome: Removed}
	case errors.Is(err, fs.ErrNotExist):
		return RemoveResult{Name: name, Outcome: AlreadyAbsent}
	default:
		return RemoveResult{Name: name, Outcome: Failed, Err: err}
	}
}
