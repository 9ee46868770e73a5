package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiBackend calls the Gemini API with native response schemas.
type GeminiBackend struct {
	client *genai.Client
}

func NewGeminiBackend(ctx context.Context, apiKey string) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiBackend{client: client}, nil
}

func (b *GeminiBackend) Generate(ctx context.Context, call Call) (string, error) {
	var parts []*genai.Part
	if len(call.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(call.Image, "image/png"))
	}
	if call.Text != "" {
		parts = append(parts, genai.NewPartFromText(call.Text))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	}
	if call.System != "" {
		config.SystemInstruction = genai.NewContentFromText(call.System, genai.RoleUser)
	}
	if call.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = toGenaiSchema(call.Schema)
	} else if call.JSON {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := b.client.Models.GenerateContent(ctx, call.Model, contents, config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", statusError(ProviderGemini, call.Model, apiErr.Code, apiErr.Message)
		}
		var apiErrPtr *genai.APIError
		if errors.As(err, &apiErrPtr) {
			return "", statusError(ProviderGemini, call.Model, apiErrPtr.Code, apiErrPtr.Message)
		}
		return "", fmt.Errorf("gemini api: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("empty response from gemini")
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("empty text in gemini response")
	}
	return text, nil
}

// toGenaiSchema converts a JSON-schema map to the genai form. Only the
// keywords node.Schema emits are handled.
func toGenaiSchema(m map[string]any) *genai.Schema {
	if len(m) == 0 {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		switch strings.ToLower(t) {
		case "object":
			s.Type = genai.TypeObject
		case "array":
			s.Type = genai.TypeArray
		case "string":
			s.Type = genai.TypeString
		case "number":
			s.Type = genai.TypeNumber
		case "integer":
			s.Type = genai.TypeInteger
		case "boolean":
			s.Type = genai.TypeBoolean
		}
	}
	if desc, ok := m["description"].(string); ok {
		s.Description = desc
	}
	s.Enum = stringList(m["enum"])
	s.Required = stringList(m["required"])
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(pm)
			}
		}
	}
	return s
}

func stringList(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, x := range vals {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
