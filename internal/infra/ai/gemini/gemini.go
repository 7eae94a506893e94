package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/bryanwahyu/biosight/internal/domain/inference"
	"github.com/bryanwahyu/biosight/internal/infra/ai/prompt"
)

const defaultModel = "gemini-1.5-flash"

// Client runs specimen inference through a Gemini vision model.
type Client struct {
	client *genai.Client
	model  string
}

// New returns a Gemini-backed inference client
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not set")
	}
	cli, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{client: cli, model: model}, nil
}

func (c *Client) Close() error { return c.client.Close() }

func (c *Client) Analyze(ctx context.Context, s inference.Specimen) (inference.Result, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.GetSystemPrompt())}}

	resp, err := model.GenerateContent(ctx,
		genai.Text(prompt.GetUserPrompt(s.Filename)),
		genai.ImageData(imageFormat(s.ContentType), s.Data),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	text, err := firstText(resp)
	if err != nil {
		return nil, err
	}

	obj, err := prompt.ParseModelOutput(text)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return inference.Success{Interpretation: obj}, nil
}

func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned from Gemini")
	}
	var b strings.Builder
	for _, p := range candidate.Content.Parts {
		if txt, ok := p.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("unexpected response format from Gemini")
	}
	return b.String(), nil
}

// imageFormat maps a MIME type to the short format genai expects.
func imageFormat(contentType string) string {
	return strings.TrimPrefix(contentType, "image/")
}

var _ inference.Client = (*Client)(nil)
