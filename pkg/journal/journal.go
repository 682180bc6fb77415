// Package journal records pipeline runs for diagnostics.
package journal

import (
	"context"

	"github.com/menta2k/image-labeler/pkg/types"
)

// Recorder persists run records. Record failures never affect the run
// being recorded; callers log them and move on.
type Recorder interface {
	Record(ctx context.Context, run types.Run) error
	Recent(ctx context.Context, limit int) ([]types.Run, error)
}

// Nop discards every record
type Nop struct{}

func (Nop) Record(context.Context, types.Run) error { return nil }

func (Nop) Recent(context.Context, int) ([]types.Run, error) { return []types.Run{}, nil }
