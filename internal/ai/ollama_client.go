package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaClient is a minimal HTTP client for a local Ollama runtime.
type OllamaClient struct {
	httpClient       *http.Client
	host             string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
}

// NewOllamaClient creates a new client targeting the given host (e.g., http://127.0.0.1:11434).
func NewOllamaClient(host string, httpTimeout time.Duration, retryMax int, baseDelay time.Duration) *OllamaClient {
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	if httpTimeout <= 0 {
		httpTimeout = 120 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 1
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	return &OllamaClient{
		httpClient:       &http.Client{Timeout: httpTimeout},
		host:             host,
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
	}
}

// Structures aligned with Ollama /api/chat
type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}
type ollamaChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

func (c *OllamaClient) encode(req GenerateRequest, stream bool) ([]byte, error) {
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	messages := make([]ollamaChatMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = ollamaChatMessage{Role: msg.Role, Content: msg.Content}
	}
	oreq := ollamaChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   stream,
		Options:  map[string]any{},
	}
	if req.Temperature != nil {
		oreq.Options["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		oreq.Options["num_predict"] = req.MaxTokens
	}
	payload, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return payload, nil
}

func (c *OllamaClient) post(ctx context.Context, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UnreachableError{Host: c.host, Err: err}
	}
	return resp, nil
}

// classifyOllamaError maps non-2xx Ollama responses; the body is {"error": "..."}.
func classifyOllamaError(resp *http.Response) error {
	apiErr := decodeAPIError(resp)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &ModelNotFoundError{APIError: apiErr}
	case resp.StatusCode >= 500:
		return &ServerError{APIError: apiErr}
	case resp.StatusCode == http.StatusBadRequest:
		return &BadRequestError{APIError: apiErr}
	}
	return apiErr
}

// Generate sends a non-streaming chat request. Bad requests and missing
// models are returned at once; other failures are retried with backoff.
func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	payload, err := c.encode(req, false)
	if err != nil {
		return nil, err
	}
	backoff := c.retryBaseDelay
	var lastErr error
	for n := 0; n < c.retryMaxAttempts; n++ {
		if n > 0 {
			if err := sleepCtx(ctx, withJitter(backoff)); err != nil {
				return nil, err
			}
			backoff *= 2
		}
		text, err := c.chatOnce(ctx, payload)
		if err == nil {
			return &GenerateResponse{
				Choices:   []Choice{{Message: Message{Role: "assistant", Content: text}}},
				RequestID: fmt.Sprintf("ollama_%d", time.Now().UnixNano()),
			}, nil
		}
		lastErr = err
		var badReq *BadRequestError
		var missing *ModelNotFoundError
		if errors.As(err, &badReq) || errors.As(err, &missing) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *OllamaClient) chatOnce(ctx context.Context, payload []byte) (string, error) {
	resp, err := c.post(ctx, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyOllamaError(resp)
	}
	var oresp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oresp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if oresp.Error != "" {
		return "", &APIError{StatusCode: resp.StatusCode, Message: oresp.Error}
	}
	return oresp.Message.Content, nil
}

// OpenStream streams NDJSON chunks from /api/chat until a chunk reports done.
func (c *OllamaClient) OpenStream(ctx context.Context, req GenerateRequest) (*Stream, error) {
	payload, err := c.encode(req, true)
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, classifyOllamaError(resp)
	}

	dec := json.NewDecoder(resp.Body)
	done := false
	src := func() (string, error) {
		if done {
			return "", io.EOF
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var oresp ollamaChatResponse
		if err := dec.Decode(&oresp); err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", fmt.Errorf("decode stream: %w", err)
		}
		if oresp.Error != "" {
			return "", &APIError{StatusCode: resp.StatusCode, Message: oresp.Error}
		}
		done = oresp.Done
		return oresp.Message.Content, nil
	}
	return NewStream(src, resp.Body.Close), nil
}
