// Package chat ties user input, the assistant and the transcript together.
// Every surface (terminal, HTTP, MCP) drives one Controller.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/kalambet/civicbot/internal/assistant"
	"github.com/kalambet/civicbot/internal/catalog"
	"github.com/kalambet/civicbot/internal/composer"
	"github.com/kalambet/civicbot/internal/proxy"
	"github.com/kalambet/civicbot/internal/report"
	"github.com/kalambet/civicbot/internal/transcript"
)

// Canned bot replies shown in place of an answer.
const (
	RateLimitedReply        = "I'm currently receiving too many requests. Please wait a few minutes and try again."
	MissingCredentialsReply = "API key is missing. Please set CIVICBOT_OPENROUTER_API_KEY (or OPENROUTER_API_KEY) and try again."
	FailureReply            = "I apologize, but I'm experiencing technical difficulties. Please try again."
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrUnknownTopic = errors.New("unknown topic")
)

// Responder answers a single query.
type Responder interface {
	Respond(ctx context.Context, text string) (string, error)
	SetLocation(loc composer.Location)
	Location() composer.Location
}

// Reporter accepts issue reports.
type Reporter interface {
	Submit(r report.Report) (report.Receipt, error)
}

// Controller is the conversation state machine shared by all surfaces.
type Controller struct {
	assistant  Responder
	transcript *transcript.Store
	catalog    *catalog.Catalog
	reports    Reporter
	logger     *slog.Logger

	pending atomic.Int32
}

// New creates a Controller. The transcript must already be loaded.
func New(a Responder, t *transcript.Store, c *catalog.Catalog, r Reporter, logger *slog.Logger) *Controller {
	if c == nil {
		c = catalog.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		assistant:  a,
		transcript: t,
		catalog:    c,
		reports:    r,
		logger:     logger,
	}
}

// Messages returns the transcript.
func (c *Controller) Messages() []transcript.Message {
	return c.transcript.Messages()
}

// Catalog returns the topic and resource catalog.
func (c *Controller) Catalog() *catalog.Catalog {
	return c.catalog
}

// Typing reports whether a reply is being awaited.
func (c *Controller) Typing() bool {
	return c.pending.Load() > 0
}

// Send records text as a user message, asks the assistant and records the
// reply. Assistant failures become a canned bot reply rather than an error;
// the returned error is only set when input is blank or the transcript
// cannot be saved.
func (c *Controller) Send(ctx context.Context, text string) (transcript.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return transcript.Message{}, ErrEmptyMessage
	}

	if _, err := c.transcript.Append(text, transcript.SenderUser, transcript.KindText); err != nil {
		c.logger.Error("saving user message", "error", err)
	}

	c.pending.Add(1)
	reply, err := c.assistant.Respond(ctx, text)
	c.pending.Add(-1)
	if err != nil {
		reply = c.replyForError(err)
	}

	msg, err := c.transcript.Append(reply, transcript.SenderBot, transcript.KindText)
	if err != nil {
		return msg, fmt.Errorf("recording reply: %w", err)
	}
	return msg, nil
}

func (c *Controller) replyForError(err error) string {
	switch {
	case errors.Is(err, assistant.ErrMissingCredentials):
		c.logger.Warn("no API key configured")
		return MissingCredentialsReply
	case proxy.IsRateLimited(err):
		c.logger.Warn("assistant rate limited", "error", err)
		return RateLimitedReply
	default:
		attrs := []any{"error", err}
		if kind, ok := proxy.KindOf(err); ok {
			attrs = append(attrs, "kind", kind.String())
		}
		c.logger.Error("assistant request failed", attrs...)
		return FailureReply
	}
}

// SelectTopic sends the canned question for topic id.
func (c *Controller) SelectTopic(ctx context.Context, id string) (transcript.Message, error) {
	topic, ok := c.catalog.Topic(id)
	if !ok {
		return transcript.Message{}, fmt.Errorf("%w: %q", ErrUnknownTopic, id)
	}
	return c.Send(ctx, topic.Prompt())
}

// NewConversation clears the transcript back to the welcome message.
func (c *Controller) NewConversation() error {
	return c.transcript.Reset()
}

// SubmitReport logs r and appends the acknowledgment as a bot message.
// Invalid reports return an error wrapping report.ErrInvalid and leave the
// transcript untouched.
func (c *Controller) SubmitReport(r report.Report) (transcript.Message, report.Receipt, error) {
	receipt, err := c.reports.Submit(r)
	if err != nil {
		return transcript.Message{}, report.Receipt{}, err
	}
	msg, err := c.transcript.Append(receipt.Message, transcript.SenderBot, transcript.KindText)
	if err != nil {
		return msg, receipt, fmt.Errorf("recording acknowledgment: %w", err)
	}
	return msg, receipt, nil
}

// SetLocation sets the location used in later prompts.
func (c *Controller) SetLocation(loc composer.Location) {
	c.assistant.SetLocation(loc)
}

// Location returns the current location.
func (c *Controller) Location() composer.Location {
	return c.assistant.Location()
}

// ParseLocation reads "City, State". A single value is taken as the state.
func ParseLocation(s string) composer.Location {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) == 1 {
		return composer.Location{State: strings.TrimSpace(parts[0])}
	}
	return composer.Location{City: strings.TrimSpace(parts[0]), State: strings.TrimSpace(parts[1])}
}
