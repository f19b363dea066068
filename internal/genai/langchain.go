package genai

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Compile-time check.
var _ Generator = (*LangChainProvider)(nil)

// LangChainProvider backs the Generator contract with langchaingo against
// any OpenAI-compatible endpoint. One client is shared across roles; the
// model name travels per request.
type LangChainProvider struct {
	llm llms.Model
}

// ProviderOptions configures NewLangChainProvider.
type ProviderOptions struct {
	// BaseURL overrides the backend endpoint. Empty uses the default.
	BaseURL string

	// TokenEnv names the environment variable holding the API token.
	TokenEnv string
}

// NewLangChainProvider builds a provider from options.
func NewLangChainProvider(opts ProviderOptions) (*LangChainProvider, error) {
	var clientOpts []openai.Option
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
	}
	if opts.TokenEnv != "" {
		token := os.Getenv(opts.TokenEnv)
		if token == "" {
			return nil, fmt.Errorf("genai: token env %s is not set", opts.TokenEnv)
		}
		clientOpts = append(clientOpts, openai.WithToken(token))
	}

	llm, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("genai: create client: %w", err)
	}

	return &LangChainProvider{llm: llm}, nil
}

// Generate issues one completion call. Context-length failures from the
// backend are normalized to ErrInputTooLarge so the stage runtime can
// condense and retry.
func (p *LangChainProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	callOpts := []llms.CallOption{
		llms.WithModel(req.Model),
	}
	if req.MaxOutputChars > 0 {
		// Coarse chars-to-tokens conversion; budgets are advisory here.
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxOutputChars/4))
	}
	if req.Stream != nil {
		sink := req.Stream
		callOpts = append(callOpts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			sink.Delta(string(chunk))
			return nil
		}))
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, p.llm, req.Prompt, callOpts...)
	if err != nil {
		if isContextLengthErr(err) {
			return nil, fmt.Errorf("%w: %v", ErrInputTooLarge, err)
		}
		return nil, fmt.Errorf("genai: generate (%s/%s): %w", req.Role, req.Model, err)
	}

	return &Response{Text: text}, nil
}

// isContextLengthErr recognizes backend context-window rejections. The
// OpenAI-compatible error surface is stringly typed at this layer.
func isContextLengthErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context_length_exceeded") ||
		strings.Contains(msg, "context length") ||
		strings.Contains(msg, "maximum context") ||
		strings.Contains(msg, "too many tokens")
}
