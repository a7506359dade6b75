package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultBaseURL is the OpenRouter OpenAI-compatible endpoint.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Completer generates chat completions. Stream calls onChunk for each
// fragment as it arrives and returns the concatenated text.
type Completer interface {
	Complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error)
	Stream(ctx context.Context, req openai.ChatCompletionRequest, onChunk func(string)) (string, error)
}

// ClientOpts holds parameters for creating an OpenAI-compatible Completer.
type ClientOpts struct {
	APIKey     string
	BaseURL    string // defaults to DefaultBaseURL
	Referer    string // sent as HTTP-Referer
	Title      string // sent as X-Title
	HTTPClient *http.Client
}

// OpenAIClient is a Completer backed by go-openai.
type OpenAIClient struct {
	client *openai.Client
}

// headerTransport adds the attribution headers OpenRouter expects.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// NewOpenAIClient creates a Completer for an OpenAI-compatible endpoint.
func NewOpenAIClient(opts ClientOpts) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("agent: api key is required")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = opts.BaseURL
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *hc
	wrapped.Transport = &headerTransport{
		base: base,
		headers: map[string]string{
			"HTTP-Referer": opts.Referer,
			"X-Title":      opts.Title,
		},
	}
	cfg.HTTPClient = &wrapped

	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}, nil
}

// Complete performs a buffered completion.
func (c *OpenAIClient) Complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	req.Stream = false
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("agent: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream performs a streaming completion.
func (c *OpenAIClient) Stream(ctx context.Context, req openai.ChatCompletionRequest, onChunk func(string)) (string, error) {
	req.Stream = true
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("agent: open stream: %w", err)
	}
	defer stream.Close()

	var b strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), fmt.Errorf("agent: stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		text := resp.Choices[0].Delta.Content
		if text == "" {
			continue
		}
		b.WriteString(text)
		if onChunk != nil {
			onChunk(text)
		}
	}
}
