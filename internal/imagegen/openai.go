package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-backed collaborators.
type OpenAIConfig struct {
	APIKey      string
	ImageModel  string
	ImageSize   string
	Quality     string
	Style       string
	VisionModel string
}

// OpenAIClient implements Generator and Analyzer on the OpenAI API.
//
// An empty API key is allowed for delayed configuration: construction
// succeeds and calls fail until a key is provided, matching how the rest of
// the server treats optional collaborators.
type OpenAIClient struct {
	client *openai.Client
	config OpenAIConfig
}

// NewOpenAIClient creates a client for image generation and style analysis.
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	if config.ImageModel == "" {
		config.ImageModel = openai.CreateImageModelDallE3
	}
	if config.ImageSize == "" {
		config.ImageSize = openai.CreateImageSize1024x1024
	}
	if config.Quality == "" {
		config.Quality = openai.CreateImageQualityStandard
	}
	if config.Style == "" {
		config.Style = openai.CreateImageStyleVivid
	}
	if config.VisionModel == "" {
		config.VisionModel = openai.GPT4o
	}

	c := &OpenAIClient{config: config}
	if config.APIKey != "" {
		c.client = openai.NewClient(config.APIKey)
	}
	return c
}

// Generate requests one image for the prompt and returns its URL along with
// any provider-revised prompt.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (*Result, error) {
	if c.client == nil {
		return nil, errors.New("imagegen: no API key configured")
	}

	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.config.ImageModel,
		N:              1,
		Size:           c.config.ImageSize,
		Quality:        c.config.Quality,
		Style:          c.config.Style,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("imagegen: provider returned no images")
	}

	return &Result{
		URL:           resp.Data[0].URL,
		RevisedPrompt: resp.Data[0].RevisedPrompt,
	}, nil
}

const analyzePrompt = `Describe the visual style of this image. Respond with a JSON object ` +
	`containing "description" (one sentence), "dominantColors" (array of color names or hex values), ` +
	`and "elements" (array of notable visual elements).`

// AnalyzeStyle sends the image to a vision model and parses the structured
// style description it returns.
func (c *OpenAIClient) AnalyzeStyle(ctx context.Context, image []byte) (*StyleAnalysis, error) {
	if c.client == nil {
		return nil, errors.New("imagegen: no API key configured")
	}
	if len(image) == 0 {
		return nil, errors.New("imagegen: empty image")
	}

	contentType := http.DetectContentType(image)
	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(image))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.config.VisionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: analyzePrompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("analyze style: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("imagegen: provider returned no choices")
	}

	var analysis StyleAnalysis
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &analysis); err != nil {
		return nil, fmt.Errorf("decode style analysis: %w", err)
	}
	return &analysis, nil
}
