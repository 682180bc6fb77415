package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/image-labeler/pkg/errs"
	"github.com/menta2k/image-labeler/pkg/types"
)

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
}

// NewClient creates a new Ollama client. Any path on ollamaURL (such as
// /api/generate) is ignored; the SDK appends its own endpoints.
func NewClient(ollamaURL string, timeout time.Duration) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q needs scheme and host", ollamaURL)
	}

	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	// Ignore OLLAMA_HOST from the environment; the configured URL wins
	client := api.NewClient(baseURL, &http.Client{Timeout: timeout})

	return &Client{client: client}, nil
}

// Generate performs a non-streaming /api/generate call and returns the
// response text, or "" when the response carries none.
func (c *Client) Generate(ctx context.Context, req types.GenerateRequest) (string, error) {
	streamFalse := false

	images := make([]api.ImageData, 0, len(req.Images))
	for _, img := range req.Images {
		images = append(images, api.ImageData(img))
	}

	genReq := &api.GenerateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Images: images,
		Stream: &streamFalse,
		Options: map[string]any{
			"temperature": req.Sampling.Temperature,
			"top_p":       req.Sampling.TopP,
			"num_predict": req.Sampling.MaxTokens,
		},
	}

	var (
		responseText string
		received     bool
	)
	err := c.client.Generate(ctx, genReq, func(resp api.GenerateResponse) error {
		responseText += resp.Response
		received = true
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return "", &errs.ModelError{
				Op:   "ollama generate",
				Body: statusErr.ErrorMessage,
				Err:  fmt.Errorf("status %d: %w", statusErr.StatusCode, err),
			}
		}
		return "", &errs.ModelError{Op: "ollama generate", Err: err}
	}
	if !received {
		return "", &errs.ModelError{Op: "ollama generate", Err: errors.New("empty response body")}
	}

	return responseText, nil
}
