package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/target/policy-analysis-api/internal/domain/job"
)

const (
	defaultBaseURL     = "https://api.anthropic.com"
	defaultHTTPTimeout = 10 * time.Minute

	// StatusOverloaded is returned by the API when it is temporarily over capacity.
	StatusOverloaded = 529
)

// Message is one turn of a Messages API conversation.
type Message struct {
	Role    string
	Content string
}

// MessageRequest is one Messages API call.
type MessageRequest struct {
	Model     string
	MaxTokens int
	System    string
	Messages  []Message
}

// ContentBlock is one block of a model response.
type ContentBlock struct {
	Type string
	Text string
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// MessageResponse is the part of a Messages API response the analyzer reads.
type MessageResponse struct {
	ID         string
	Model      string
	Content    []ContentBlock
	StopReason string
	Usage      Usage
}

// Text concatenates the text blocks of the response.
func (r *MessageResponse) Text() string {
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// ClientOptions groups dependencies for Client.
type ClientOptions struct {
	APIKey     string       // Required: API key
	BaseURL    string       // Optional: defaults to https://api.anthropic.com
	HTTPClient *http.Client // Optional: defaults to a client with a 10m timeout
}

// Client sends Messages API requests through the Anthropic SDK. The SDK's own
// retries are disabled; retry scheduling belongs to the job backoff policy.
type Client struct {
	sdk anthropic.Client
}

// NewClient constructs a Client.
func NewClient(opts ClientOptions) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{sdk: anthropic.NewClient(
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(base+"/"),
		option.WithHTTPClient(hc),
		option.WithMaxRetries(0),
	)}
}

// CreateMessage sends one Messages API request. Failures are tagged retryable or
// fatal based on the status code or transport error.
func (c *Client) CreateMessage(ctx context.Context, in MessageRequest) (*MessageResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(in.Model),
		MaxTokens: int64(in.MaxTokens),
		Messages:  make([]anthropic.MessageParam, 0, len(in.Messages)),
	}
	if in.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: in.System}}
	}
	for _, m := range in.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
			continue
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
	}

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, classifyStatus(apiErr.StatusCode, err)
		}
		return nil, classifyTransport(ctx, err)
	}

	out := &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Content:    make([]ContentBlock, 0, len(msg.Content)),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		out.Content = append(out.Content, ContentBlock{Type: block.Type, Text: block.Text})
	}
	return out, nil
}

func classifyStatus(status int, err error) error {
	err = fmt.Errorf("API error: HTTP %d: %w", status, err)
	switch status {
	case http.StatusTooManyRequests:
		return job.Retryable(job.ReasonRateLimited, err)
	case StatusOverloaded:
		return job.Retryable(job.ReasonOverloaded, err)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return job.Retryable(job.ReasonTimeout, err)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return job.Retryable(job.ReasonUnavailable, err)
	}
	return job.Fatal("api_error", err)
}

func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return job.Fatal("canceled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return job.Retryable(job.ReasonTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return job.Retryable(job.ReasonTimeout, err)
	}
	return job.Retryable(job.ReasonUnavailable, fmt.Errorf("connection error: %w", err))
}
