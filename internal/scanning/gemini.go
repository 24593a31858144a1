package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"
)

// GeminiSDK implements Transport with the Google Gemini Go SDK. Responses
// are re-encoded into the REST envelope so the same parser applies.
type GeminiSDK struct {
	client    *genai.Client
	modelName string

	// Timeout bounds each call when positive.
	Timeout time.Duration
}

// NewGeminiSDK creates a new GeminiSDK transport
func NewGeminiSDK(ctx context.Context, apiKey string, modelName string) (*GeminiSDK, error) {
	if apiKey == "" {
		return nil, &ConfigError{Field: "api key"}
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiSDK{
		client:    client,
		modelName: modelName,
	}, nil
}

// Send issues a single GenerateContent call.
func (g *GeminiSDK) Send(ctx context.Context, req *Request) ([]byte, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	parts, err := sdkParts(req)
	if err != nil {
		return nil, err
	}

	// GenerativeModel carries per-call config, so build one per request
	// instead of mutating a shared instance.
	model := g.client.GenerativeModel(g.modelName)
	model.ResponseMIMEType = req.GenerationConfig.ResponseMIMEType
	model.ResponseSchema = sdkSchema(req.GenerationConfig.ResponseSchema)

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, sdkError(err)
	}

	return envelopeFromSDK(resp)
}

// Close closes the Gemini client
func (g *GeminiSDK) Close() error {
	return g.client.Close()
}

func sdkParts(req *Request) ([]genai.Part, error) {
	var parts []genai.Part
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			switch {
			case p.InlineData != nil:
				data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("decoding inline data: %w", err)
				}
				parts = append(parts, genai.Blob{MIMEType: p.InlineData.MIMEType, Data: data})
			case p.Text != "":
				parts = append(parts, genai.Text(p.Text))
			}
		}
	}
	return parts, nil
}

var sdkTypes = map[string]genai.Type{
	"string":  genai.TypeString,
	"number":  genai.TypeNumber,
	"integer": genai.TypeInteger,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
	"object":  genai.TypeObject,
}

func sdkSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:     sdkTypes[s.Type],
		Items:    sdkSchema(s.Items),
		Required: s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = sdkSchema(prop)
		}
	}
	return out
}

func envelopeFromSDK(resp *genai.GenerateContentResponse) ([]byte, error) {
	var env Envelope
	if resp != nil {
		for _, cand := range resp.Candidates {
			c := Candidate{}
			if cand != nil && cand.Content != nil {
				c.Content = &CandidateContent{}
				for _, part := range cand.Content.Parts {
					if text, ok := part.(genai.Text); ok {
						c.Content.Parts = append(c.Content.Parts, TextPart{Text: string(text)})
					}
				}
			}
			env.Candidates = append(env.Candidates, c)
		}
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return body, nil
}

func sdkError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("%w: %v", ErrEmptyUpstreamResult, err)
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.HTTPCode()
		if code <= 0 {
			code = http.StatusBadGateway
		}
		return &UpstreamError{StatusCode: code, Body: apiErr.Error()}
	}

	return &TransportError{Err: err}
}
