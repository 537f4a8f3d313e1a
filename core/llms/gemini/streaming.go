package gemini

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/milankumarIS/swaram-agent-worker/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

type Client struct {
	client       *genai.Client
	model        string
	systemPrompt string
}

func NewClient(ctx context.Context, apiKey, model, systemPrompt string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{client: client, model: model, systemPrompt: systemPrompt}, nil
}

func (c *Client) Model() string { return c.model }

// PromptWithStream streams the text of the next assistant reply.
func (c *Client) PromptWithStream(ctx context.Context, opts ...llms.StreamingPromptOption) iter.Seq2[string, error] {
	options := llms.StreamingPromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return func(yield func(string, error) bool) {
		ctx, span := tracer.Start(ctx, "gemini prompt with stream", trace.WithAttributes(
			attribute.String("llm.model", c.model),
			attribute.Int("llm.history_length", len(options.History)),
		))
		defer span.End()

		config := &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction(c.systemPrompt, options.Instructions), genai.RoleUser),
		}

		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, toGeminiContents(options), config) {
			if err != nil {
				err = fmt.Errorf("gemini stream failed: %w", err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				yield("", err)
				return
			}
			if resp == nil {
				continue
			}
			if text := resp.Text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

func systemInstruction(systemPrompt, instructions string) string {
	if instructions == "" {
		return systemPrompt
	}
	return strings.TrimSpace(systemPrompt + "\n\n" + instructions)
}

func toGeminiContents(options llms.StreamingPromptOptions) []*genai.Content {
	contents := make([]*genai.Content, 0, len(options.History)+1)
	for _, message := range options.History {
		if message.Content == "" {
			continue
		}
		switch message.Role {
		case llms.MessageRoleAssistant:
			contents = append(contents, genai.NewContentFromText(message.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(message.Content, genai.RoleUser))
		}
	}

	// Gemini needs at least one user turn, a bare instruction reply (the
	// greeting) carries the instruction as that turn.
	if len(contents) == 0 && options.Instructions != "" {
		contents = append(contents, genai.NewContentFromText(options.Instructions, genai.RoleUser))
	}
	return contents
}
