package live

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/creastat/infra/telemetry"
	providers "github.com/creastat/providers/core"
)

// Responder produces a single response for a user message when the streaming
// session is unavailable. It is the non-streaming request/response fallback
// the Session degrades to after reconnection is exhausted.
type Responder interface {
	Respond(ctx context.Context, message string) (string, error)
}

// HTTPResponder posts to a plain-text chat endpoint accepting
// {"message": string} and returning {"response": string} on success or
// {"error": string} with a non-2xx status.
type HTTPResponder struct {
	URL    string
	Client *http.Client
}

type fallbackRequest struct {
	Message string `json:"message"`
}

type fallbackResponse struct {
	Response string `json:"response"`
	Model    string `json:"model,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Respond implements Responder
func (r *HTTPResponder) Respond(ctx context.Context, message string) (string, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	body, err := json.Marshal(fallbackRequest{Message: message})
	if err != nil {
		return "", fmt.Errorf("live: marshal fallback request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("live: build fallback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("live: fallback request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Error bodies are decoded best-effort; endpoints may return HTML.
		var decoded fallbackResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err == nil && decoded.Error != "" {
			return "", fmt.Errorf("live: fallback endpoint: %s", decoded.Error)
		}
		return "", fmt.Errorf("live: fallback endpoint: status %d", resp.StatusCode)
	}

	var decoded fallbackResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("live: decode fallback response: %w", err)
	}
	return decoded.Response, nil
}

// ProviderResponderConfig holds provider-backed fallback configuration
type ProviderResponderConfig struct {
	Provider     providers.LLMProvider
	Model        string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    *int
	Logger       telemetry.Logger
}

// ProviderResponder adapts an LLM provider into the fallback path by
// collecting a streamed completion into a single response.
type ProviderResponder struct {
	config ProviderResponderConfig
	logger telemetry.Logger
}

// NewProviderResponder creates a provider-backed fallback responder
func NewProviderResponder(config ProviderResponderConfig) *ProviderResponder {
	if config.Logger == nil {
		config.Logger = telemetry.New(telemetry.Config{Level: "info"})
	}
	return &ProviderResponder{
		config: config,
		logger: config.Logger.WithModule("fallback"),
	}
}

// Respond implements Responder
func (r *ProviderResponder) Respond(ctx context.Context, message string) (string, error) {
	messages := []providers.Message{}
	if r.config.SystemPrompt != "" {
		messages = append(messages, providers.Message{
			Role:    "system",
			Content: r.config.SystemPrompt,
		})
	}
	messages = append(messages, providers.Message{
		Role:    "user",
		Content: message,
	})

	req := providers.ChatRequest{
		Model:       r.config.Model,
		Messages:    messages,
		Temperature: r.config.Temperature,
		MaxTokens:   r.config.MaxTokens,
	}

	stream, err := r.config.Provider.StreamChatCompletion(ctx, req)
	if err != nil {
		r.logger.Error("failed to start fallback stream", telemetry.Err(err))
		return "", fmt.Errorf("live: fallback completion: %w", err)
	}
	defer stream.Close()

	var full string
	for {
		chunk, err := stream.Receive(ctx)
		if err != nil {
			r.logger.Error("error receiving fallback chunk", telemetry.Err(err))
			return "", fmt.Errorf("live: fallback chunk: %w", err)
		}

		if chunk == nil || chunk.Done {
			break
		}
		full += chunk.Content
	}

	r.logger.Debug("fallback response collected", telemetry.Int("length", len(full)))
	return full, nil
}
