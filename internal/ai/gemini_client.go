package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient adapts the Gemini API to the Runtime interfaces.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient builds a client for the Gemini Developer API.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("API key is missing")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// geminiContents splits chat messages into a system instruction and the
// conversation. Gemini only knows "user" and "model" roles.
func geminiContents(msgs []Message) (*genai.Content, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		role := genai.RoleModel
		if m.Role == "user" {
			role = genai.RoleUser
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	if len(system) == 0 {
		return nil, contents
	}
	return &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}, contents
}

func geminiConfig(req GenerateRequest, system *genai.Content) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return cfg
}

func (g *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	system, contents := geminiContents(req.Messages)
	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, geminiConfig(req, system))
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	return &GenerateResponse{
		Choices: []Choice{{Message: Message{Role: "assistant", Content: resp.Text()}}},
	}, nil
}

// OpenStream pulls GenerateContentStream through iter.Pull2 so the cursor
// drives the transport one chunk at a time.
func (g *GeminiClient) OpenStream(ctx context.Context, req GenerateRequest) (*Stream, error) {
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	system, contents := geminiContents(req.Messages)
	seq := g.client.Models.GenerateContentStream(ctx, req.Model, contents, geminiConfig(req, system))
	return streamFromSeq(seq), nil
}

func streamFromSeq(seq iter.Seq2[*genai.GenerateContentResponse, error]) *Stream {
	next, stop := iter.Pull2(seq)
	src := func() (string, error) {
		resp, err, ok := next()
		if !ok {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("stream content: %w", err)
		}
		if resp == nil {
			return "", nil
		}
		return resp.Text(), nil
	}
	return NewStream(src, func() error {
		stop()
		return nil
	})
}
