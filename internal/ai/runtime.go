package ai

import "context"

// Runtime is a minimal interface implemented by chat-completion backends
// such as OpenAI-compatible APIs, Gemini and local runtimes (Ollama).
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used across the CLI for selection.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// StreamRuntime is an optional extension that supports streaming output.
// OpenStream returns once the upstream accepted the request; fragments are
// then pulled from the returned cursor.
type StreamRuntime interface {
	OpenStream(ctx context.Context, req GenerateRequest) (*Stream, error)
}
