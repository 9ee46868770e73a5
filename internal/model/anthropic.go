package model

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicBackend calls the Anthropic Messages API.
type AnthropicBackend struct {
	client anthropic.Client
}

// NewAnthropicBackend disables the SDK's own retries; Client retries.
func NewAnthropicBackend(apiKey string, opts ...option.RequestOption) *AnthropicBackend {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &AnthropicBackend{client: anthropic.NewClient(opts...)}
}

func (b *AnthropicBackend) Generate(ctx context.Context, call Call) (string, error) {
	var blocks []anthropic.ContentBlockParamUnion
	if len(call.Image) > 0 {
		blocks = append(blocks, anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(call.Image)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(call.Text))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(call.Model),
		MaxTokens: int64(call.MaxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	system, err := systemWithSchema(call)
	if err != nil {
		return "", err
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", statusError(ProviderAnthropic, call.Model, apiErr.StatusCode, apiErr.RawJSON())
		}
		return "", fmt.Errorf("anthropic api: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", errors.New("empty response from anthropic")
	}
	return text.String(), nil
}

// systemWithSchema appends the JSON schema to the system instruction for
// providers without native structured output.
func systemWithSchema(call Call) (string, error) {
	if call.Schema == nil {
		return call.System, nil
	}
	schema, err := json.Marshal(call.Schema)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	return call.System + "\n\nThe answer must be JSON matching this schema:\n" + string(schema), nil
}
