// Package openrouter is a streaming client for the OpenRouter chat API.
//
// The client turns (model id, message list) into an ordered sequence of text
// deltas, compensating for providers that reject a system-role message: a 400
// on the standard attempt is retried once with the system content merged into
// the first user message.
package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultTimeout bounds one streaming attempt wall-clock.
	DefaultTimeout = 60 * time.Second

	// doneSentinel terminates a well-formed event stream.
	doneSentinel = "[DONE]"
)

// Message roles accepted by the chat endpoint.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one ordered role/content entry in a chat request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is token/cost metadata from the final stream frame.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`
}

// Config holds client configuration.
type Config struct {
	// BaseURL overrides the API root (used by tests).
	BaseURL string

	// APIKey is the bearer token for authenticated requests.
	APIKey string

	// HTTPReferer and AppTitle identify the calling app to OpenRouter.
	HTTPReferer string
	AppTitle    string

	// Timeout bounds each streaming attempt. Default: 60s.
	Timeout time.Duration

	// CacheTTL controls the model catalog cache. Default: 1 hour.
	CacheTTL time.Duration
}

// Client talks to an OpenRouter-shaped generation backend.
type Client struct {
	baseURL     string
	apiKey      string
	httpReferer string
	appTitle    string
	timeout     time.Duration
	httpClient  *http.Client
	cache       *ModelCache
}

// New creates a client. The model catalog cache is owned by the client and
// injected explicitly so tests can control its clock.
func New(cfg Config, cache *ModelCache) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if cache == nil {
		ttl := cfg.CacheTTL
		if ttl == 0 {
			ttl = DefaultCacheTTL
		}
		cache = NewModelCache(ttl)
	}

	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      cfg.APIKey,
		httpReferer: cfg.HTTPReferer,
		appTitle:    cfg.AppTitle,
		timeout:     timeout,
		httpClient:  &http.Client{},
		cache:       cache,
	}
}

// chatRequest is the wire payload for /chat/completions.
type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// streamChunk is one incremental event frame.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// StreamChatCompletion streams a chat completion, calling onDelta for every
// non-empty content fragment in arrival order. It returns the accumulated
// text and usage metadata, if the backend reported any.
//
// If the message list contains a system message and the backend rejects the
// standard shape with HTTP 400, the call is retried once with the system
// content folded into the first user message. Any other failure, or a failure
// on the merged attempt, propagates to the caller.
func (c *Client) StreamChatCompletion(ctx context.Context, model string, messages []Message, onDelta func(delta string)) (string, *Usage, error) {
	attempts := [][]Message{messages}
	if hasSystemMessage(messages) {
		attempts = append(attempts, MergeSystemMessages(messages))
	}

	var lastErr error
	for i, msgs := range attempts {
		text, usage, err := c.streamOnce(ctx, chatRequest{Model: model, Messages: msgs, Stream: true}, onDelta)
		if err == nil {
			return text, usage, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest && i == 0 && len(attempts) > 1 {
			slog.Debug("Provider rejected system role, retrying with merged messages",
				"model", model,
				"error", apiErr.Message,
			)
			lastErr = err
			continue
		}

		return "", nil, err
	}

	return "", nil, lastErr
}

// streamOnce opens one streaming request and consumes it to the sentinel.
func (c *Client) streamOnce(ctx context.Context, payload chatRequest, onDelta func(string)) (string, *Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("failed to build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return "", nil, newAPIError(resp.StatusCode, errBody)
	}

	var sb strings.Builder
	var usage *Usage

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == doneSentinel {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed frames; the terminal sentinel still ends the stream.
			continue
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				sb.WriteString(delta)
				if onDelta != nil {
					onDelta(delta)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("stream read failed: %w", err)
	}

	return sb.String(), usage, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.httpReferer != "" {
		req.Header.Set("HTTP-Referer", c.httpReferer)
	}
	if c.appTitle != "" {
		req.Header.Set("X-Title", c.appTitle)
	}
}

func hasSystemMessage(messages []Message) bool {
	for _, m := range messages {
		if m.Role == RoleSystem {
			return true
		}
	}
	return false
}

// MergeSystemMessages folds all system content into the first user message:
// system contents are newline-joined and prepended, blank-line separated, and
// the system messages are dropped. If no user message exists, one is
// synthesized from the merged system text.
func MergeSystemMessages(messages []Message) []Message {
	var systemParts []string
	var rest []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			systemParts = append(systemParts, m.Content)
		} else {
			rest = append(rest, m)
		}
	}
	if len(systemParts) == 0 {
		return messages
	}

	merged := strings.Join(systemParts, "\n")
	for i, m := range rest {
		if m.Role == RoleUser {
			rest[i].Content = merged + "\n\n" + m.Content
			return rest
		}
	}

	return append(rest, Message{Role: RoleUser, Content: merged})
}
