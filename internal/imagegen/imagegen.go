// Package imagegen wraps the external image-generation and style-analysis
// services behind narrow interfaces so the realtime core never depends on a
// concrete provider.
package imagegen

import "context"

// Result is a generated image reference. RevisedPrompt carries the
// provider-rewritten prompt when the service returns one.
type Result struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
}

// Generator produces an image for a free-text prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Result, error)
}

// StyleAnalysis describes the visual style of an image.
type StyleAnalysis struct {
	Description    string   `json:"description"`
	DominantColors []string `json:"dominantColors"`
	Elements       []string `json:"elements"`
}

// Analyzer extracts a style description from raw image bytes.
type Analyzer interface {
	AnalyzeStyle(ctx context.Context, image []byte) (*StyleAnalysis, error)
}
