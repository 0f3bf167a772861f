package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/civicbot/internal/clock"
	"github.com/kalambet/civicbot/internal/composer"
)

const (
	defaultBaseURL     = "https://openrouter.ai/api/v1"
	defaultModel       = "google/gemini-2.0-flash-exp:free"
	defaultSiteURL     = "https://civicbot.example.com"
	defaultSiteName    = "CivicBot"
	defaultTimeout     = 60 * time.Second
	defaultMaxAttempts = 3
	maxErrorBodySize   = 64 << 10
)

// Options configures a Client. Empty fields select the defaults.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	SiteURL     string
	SiteName    string
	MaxAttempts int
	HTTPClient  *http.Client
	Clock       clock.Clock
	Logger      *slog.Logger

	// OnStep, if set, observes every state machine transition.
	OnStep func(Step)
}

// Client communicates with the OpenRouter chat completions API.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	referer     string
	title       string
	maxAttempts int
	httpClient  *http.Client
	clock       clock.Clock
	logger      *slog.Logger
	onStep      func(Step)
}

// NewClient creates an OpenRouter client.
func NewClient(opts Options) *Client {
	c := &Client{
		apiKey:      opts.APIKey,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		model:       opts.Model,
		referer:     opts.SiteURL,
		title:       opts.SiteName,
		maxAttempts: opts.MaxAttempts,
		httpClient:  opts.HTTPClient,
		clock:       opts.Clock,
		logger:      opts.Logger,
		onStep:      opts.OnStep,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.referer == "" {
		c.referer = defaultSiteURL
	}
	if c.title == "" {
		c.title = defaultSiteName
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return NewClient(Options{APIKey: apiKey, BaseURL: baseURL})
}

// HasCredentials reports whether an API key is configured.
func (c *Client) HasCredentials() bool {
	return strings.TrimSpace(c.apiKey) != ""
}

// Model returns the model name sent with every request.
func (c *Client) Model() string {
	return c.model
}

// Complete performs one logical completion call and returns the reply text.
// Rate limits back off exponentially and transport failures back off
// linearly, up to the attempt limit; other HTTP failures return immediately.
// All sleeps happen inside this call, so a governor slot stays occupied for
// its whole duration.
func (c *Client) Complete(ctx context.Context, messages []composer.Message) (string, error) {
	body, err := json.Marshal(ChatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	step := Step{State: Attempting, Attempt: 1}
	var reply string
	for {
		c.emit(step)
		if step.terminal() {
			break
		}

		switch step.State {
		case Attempting:
			var callErr *Error
			reply, callErr = c.doChat(ctx, body)
			if callErr != nil && ctx.Err() != nil {
				return "", ctx.Err()
			}
			step = next(step.Attempt, c.maxAttempts, callErr)

		case BackoffWaiting:
			c.logger.Warn("completion failed, retrying",
				"attempt", step.Attempt,
				"max_attempts", c.maxAttempts,
				"wait", step.Wait,
			)
			if err := c.clock.Sleep(ctx, step.Wait); err != nil {
				return "", err
			}
			step = Step{State: Attempting, Attempt: step.Attempt + 1}
		}
	}

	if step.State == Succeeded {
		return reply, nil
	}
	c.logger.Error("completion failed",
		"kind", step.Err.Kind.String(),
		"status", step.Err.Status,
		"attempts", step.Attempt,
		"error", step.Err,
	)
	return "", step.Err
}

func (c *Client) emit(s Step) {
	if c.onStep != nil {
		c.onStep(s)
	}
}

// doChat makes a single HTTP attempt and classifies its outcome.
func (c *Client) doChat(ctx context.Context, body []byte) (string, *Error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindAPIError, Message: "creating request", Err: err}
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &Error{Kind: KindNetworkError, Message: "executing request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &Error{Kind: KindRateLimited, Status: resp.StatusCode, Message: "rate limited"}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		_ = json.Unmarshal(raw, &eb)
		c.logger.Debug("upstream error response", "status", resp.StatusCode, "body", string(raw))
		return "", statusError(resp.StatusCode, eb.message())
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindNetworkError, Status: resp.StatusCode, Message: "reading response", Err: err}
	}

	reply, err := composer.ExtractReply(respBody)
	if err != nil {
		return "", &Error{Kind: KindAPIError, Status: resp.StatusCode, Message: "API error", Err: err}
	}
	return reply, nil
}

// ListModels returns the list of available models from OpenRouter.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var list ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding models: %w", err)
	}

	if list.Data == nil {
		return []Model{}, nil
	}
	return list.Data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)
}
