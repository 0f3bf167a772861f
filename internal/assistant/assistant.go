// Package assistant answers a single user query by composing a prompt and
// routing the completion call through the outbound governor.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/civicbot/internal/composer"
	"github.com/kalambet/civicbot/internal/governor"
)

// ErrMissingCredentials is returned when no API key is configured. No
// request is queued in that case.
var ErrMissingCredentials = errors.New("API key is missing")

// Completer performs one logical completion call, retries included.
type Completer interface {
	Complete(ctx context.Context, messages []composer.Message) (string, error)
	HasCredentials() bool
}

// Dispatcher serializes outbound operations.
type Dispatcher interface {
	Do(ctx context.Context, op governor.Operation) (string, error)
}

// Service turns queries into replies.
type Service struct {
	gov      Dispatcher
	client   Completer
	composer *composer.Composer
	logger   *slog.Logger

	mu       sync.RWMutex
	location composer.Location
}

// New creates a Service. A nil logger selects slog.Default().
func New(gov Dispatcher, client Completer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gov:      gov,
		client:   client,
		composer: composer.New(),
		logger:   logger,
	}
}

// SetLocation sets the location mentioned in subsequent prompts. A zero
// location clears it.
func (s *Service) SetLocation(loc composer.Location) {
	s.mu.Lock()
	s.location = loc
	s.mu.Unlock()
}

// Location returns the current location.
func (s *Service) Location() composer.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.location
}

// Respond returns the model's reply to text. ctx bounds only the wait; once
// queued the call is dispatched regardless.
func (s *Service) Respond(ctx context.Context, text string) (string, error) {
	if !s.client.HasCredentials() {
		return "", ErrMissingCredentials
	}

	messages := s.composer.Compose(text, s.Location())
	s.logger.Debug("queueing completion", "query_len", len(text))

	reply, err := s.gov.Do(ctx, func(opCtx context.Context) (string, error) {
		return s.client.Complete(opCtx, messages)
	})
	if err != nil {
		return "", fmt.Errorf("getting response: %w", err)
	}
	return reply, nil
}
