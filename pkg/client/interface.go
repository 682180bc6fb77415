package client

import (
	"context"

	"github.com/menta2k/image-labeler/pkg/types"
)

// Backend issues one non-streaming generation request and returns the
// response text. Implementations report transport and protocol failures
// as *errs.ModelError.
type Backend interface {
	Generate(ctx context.Context, req types.GenerateRequest) (string, error)
}

// ModelClient is the recognition/translation contract the pipeline consumes.
type ModelClient interface {
	Recognize(ctx context.Context, image []byte) (string, error)
	Translate(ctx context.Context, text string) (string, error)
}
