package completion

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/z-chatroom/backend/internal/model/chat"
)

// OpenAIOptions configures an OpenAI-compatible client.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	// RequestTimeout bounds connection setup and waiting for response
	// headers; ResourceTimeout bounds the whole exchange.
	RequestTimeout  time.Duration
	ResourceTimeout time.Duration
	// HTTPClient overrides the client built from the timeouts.
	HTTPClient *http.Client
}

// OpenAIClient talks to any endpoint speaking the OpenAI chat completions
// API. go-openai attaches the bearer credential and JSON content type.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient builds a client. The transport is wrapped so that HTTP
// failures can be classified by status even when the error body is not the
// provider's JSON error envelope.
func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts.RequestTimeout, opts.ResourceTimeout)
	}
	wrapped := *httpClient
	base := wrapped.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped.Transport = &statusRecorder{next: base}
	cfg.HTTPClient = &wrapped

	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

func newHTTPClient(requestTimeout, resourceTimeout time.Duration) *http.Client {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	if resourceTimeout <= 0 {
		resourceTimeout = 60 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   requestTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = requestTimeout
	transport.ResponseHeaderTimeout = requestTimeout

	return &http.Client{Transport: transport, Timeout: resourceTimeout}
}

// Send performs one chat completion call.
func (c *OpenAIClient) Send(ctx context.Context, req Request) (*Response, error) {
	status := &statusHolder{}
	ctx = context.WithValue(ctx, statusKey{}, status)

	resp, err := c.client.CreateChatCompletion(ctx, toOpenAIRequest(req))
	if err != nil {
		cerr := classifyOpenAI(err, status.get())
		log.Debug().Err(err).Str("kind", string(cerr.Kind)).Int("status", cerr.StatusCode).Msg("openai completion failed")
		return nil, cerr
	}

	return fromOpenAIResponse(resp), nil
}

func toOpenAIRequest(req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
}

func fromOpenAIResponse(resp openai.ChatCompletionResponse) *Response {
	out := &Response{Choices: make([]Choice, 0, len(resp.Choices))}
	for _, choice := range resp.Choices {
		role := chat.Role(choice.Message.Role)
		if role == "" {
			role = chat.RoleAssistant
		}
		out.Choices = append(out.Choices, Choice{
			Message: chat.Message{Role: role, Content: choice.Message.Content},
		})
	}
	return out
}

func classifyOpenAI(err error, recordedStatus int) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return FromStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return FromStatus(reqErr.HTTPStatusCode, err)
	}
	switch {
	case recordedStatus == 0:
	case recordedStatus < 200 || recordedStatus > 299:
		return FromStatus(recordedStatus, err)
	case errors.Is(err, io.EOF):
		// a 2xx with an empty body
		return &Error{Kind: KindDecode, Err: err}
	}
	return Classify(err)
}

type statusKey struct{}

type statusHolder struct {
	mu   sync.Mutex
	code int
}

func (h *statusHolder) set(code int) {
	h.mu.Lock()
	h.code = code
	h.mu.Unlock()
}

func (h *statusHolder) get() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.code
}

// statusRecorder notes the response code in the holder carried by the
// request context. 0 means no response arrived.
type statusRecorder struct {
	next http.RoundTripper
}

func (t *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	if holder, ok := req.Context().Value(statusKey{}).(*statusHolder); ok {
		holder.set(resp.StatusCode)
	}
	return resp, nil
}
