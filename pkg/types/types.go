package types

import "time"

// Sampling holds the generation options sent with every model request
type Sampling struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
}

// GenerateRequest is a single non-streaming generation call against a model backend
type GenerateRequest struct {
	Model    string
	Prompt   string
	Images   [][]byte
	Sampling Sampling
}

// PipelineResult is the outcome of one successful labeling run
type PipelineResult struct {
	ImageFilename   string `json:"imageFilename"`
	LabelFilename   string `json:"labelFilename"`
	OriginalLabel   string `json:"originalLabel"`
	TranslatedLabel string `json:"translatedLabel"`
	ImageURL        string `json:"imageUrl"`
}

// TranslateResult is the outcome of a manual translation request
type TranslateResult struct {
	Original   string `json:"original"`
	Translated string `json:"translated"`
}

// CorpusEntry joins one stored image with its label, if any
type CorpusEntry struct {
	ImageFilename string  `json:"imageFilename"`
	ImageURL      string  `json:"imageUrl"`
	LabelFilename *string `json:"labelFilename"`
	HasLabel      bool    `json:"hasLabel"`
}

// ItemResult is the per-file outcome of a batch operation
type ItemResult struct {
	Filename string `json:"filename"`
	Success  bool   `json:"success"`
	Stage    string `json:"stage,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchResult is the envelope returned by batch operations. Success reports
// that the batch ran, not that every item succeeded.
type BatchResult struct {
	Success bool         `json:"success"`
	Results []ItemResult `json:"results"`
}

// Run is a journal record of one pipeline execution
type Run struct {
	ID              int64     `json:"id"`
	ImageFilename   string    `json:"imageFilename"`
	Stage           string    `json:"stage"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	OriginalLabel   string    `json:"originalLabel,omitempty"`
	TranslatedLabel string    `json:"translatedLabel,omitempty"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
}
