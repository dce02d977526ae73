package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tinhbv101/voice-ai/logger"
)

const (
	openAIBaseURL         = "https://api.openai.com/v1"
	openAICompletionsPath = "/chat/completions"

	// ModelGPT4oMini is the default chat model, chosen for streaming latency.
	ModelGPT4oMini = "gpt-4o-mini"

	// defaultOpenAITimeout bounds the whole streamed response, not just the
	// first token.
	defaultOpenAITimeout = 120 * time.Second

	// defaultTemperature matches a conversational assistant register.
	defaultTemperature = 0.7

	// streamDone is the SSE terminator sent by OpenAI-compatible endpoints.
	streamDone = "[DONE]"

	// HTTP status code threshold for server errors.
	openAIServerErrorThreshold = 500
)

// OpenAIService implements generation against an OpenAI-compatible chat
// completions endpoint with streaming enabled.
type OpenAIService struct {
	apiKey      string
	baseURL     string
	client      *http.Client
	model       string
	temperature float64
}

// OpenAIOption configures the OpenAI generation service.
type OpenAIOption func(*OpenAIService)

// WithOpenAIBaseURL sets a custom base URL (for testing, proxies, or any
// OpenAI-compatible endpoint).
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(s *OpenAIService) {
		s.baseURL = url
	}
}

// WithOpenAIClient sets a custom HTTP client.
func WithOpenAIClient(client *http.Client) OpenAIOption {
	return func(s *OpenAIService) {
		s.client = client
	}
}

// WithOpenAIModel sets the chat model to use.
func WithOpenAIModel(model string) OpenAIOption {
	return func(s *OpenAIService) {
		s.model = model
	}
}

// WithOpenAITemperature sets the sampling temperature.
func WithOpenAITemperature(temperature float64) OpenAIOption {
	return func(s *OpenAIService) {
		s.temperature = temperature
	}
}

// NewOpenAI creates an OpenAI-compatible generation service.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIService {
	s := &OpenAIService{
		apiKey:      apiKey,
		baseURL:     openAIBaseURL,
		client:      &http.Client{Timeout: defaultOpenAITimeout},
		model:       ModelGPT4oMini,
		temperature: defaultTemperature,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *OpenAIService) Name() string {
	return "openai"
}

// openAIRequest is the request body for the chat completions API.
type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

// openAIStreamChunk is the shape of one streamed SSE data event.
type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// openAIErrorResponse is the error body returned on non-200 responses.
type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Stream starts a streamed chat completion. The system instruction is
// prepended to the history as a system message.
func (s *OpenAIService) Stream(
	ctx context.Context, system string, history []Message,
) (<-chan Chunk, error) {
	if len(history) == 0 {
		return nil, ErrEmptyContext
	}

	messages := make([]Message, 0, len(history)+1)
	if system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: system})
	}
	messages = append(messages, history...)

	reqBody := openAIRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: s.temperature,
		Stream:      true,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.baseURL+openAICompletionsPath,
		bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	logger.CollaboratorCall("generation", s.Name(), "model", s.model, "messages", len(messages))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, NewGenerationError(s.Name(), "", "request failed", err, true)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, s.handleError(resp)
	}

	out := make(chan Chunk)
	go s.streamResponse(ctx, resp.Body, out)
	return out, nil
}

// streamResponse reads the SSE stream and sends chunks until the stream
// ends, errors, or ctx is canceled.
func (s *OpenAIService) streamResponse(ctx context.Context, body io.ReadCloser, out chan<- Chunk) {
	defer close(out)
	defer body.Close()

	events := newSSEReader(body)
	accumulated := ""

	for events.Next() {
		select {
		case <-ctx.Done():
			out <- Chunk{
				Content:      accumulated,
				FinishReason: StringPtr("cancelled"),
				Err:          ctx.Err(),
			}
			return
		default:
		}

		data := events.Data()
		if data == streamDone {
			out <- Chunk{Content: accumulated, FinishReason: StringPtr("stop")}
			return
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // Skip malformed chunks
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			accumulated += choice.Delta.Content
			select {
			case out <- Chunk{Content: accumulated, Delta: choice.Delta.Content}:
			case <-ctx.Done():
				return
			}
		}

		if choice.FinishReason != nil {
			out <- Chunk{Content: accumulated, FinishReason: choice.FinishReason}
			return
		}
	}

	if err := events.Err(); err != nil {
		out <- Chunk{
			Content:      accumulated,
			FinishReason: StringPtr("error"),
			Err:          NewGenerationError(s.Name(), "", "stream read failed", err, true),
		}
	}
}

// handleError processes an error response from the provider.
func (s *OpenAIService) handleError(resp *http.Response) error {
	var errResp openAIErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return NewGenerationError(
			s.Name(),
			fmt.Sprintf("%d", resp.StatusCode),
			"unknown error",
			err,
			resp.StatusCode >= openAIServerErrorThreshold,
		)
	}

	retryable := resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= openAIServerErrorThreshold

	var cause error
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		cause = ErrRateLimited
	case http.StatusUnauthorized:
		cause = fmt.Errorf("invalid API key")
	}

	return NewGenerationError(
		s.Name(),
		errResp.Error.Code,
		errResp.Error.Message,
		cause,
		retryable,
	)
}
