// Package composer turns a raw user query into the single-turn prompt sent
// to the chat completions endpoint, and pulls the reply text back out of the
// response envelope. It holds no state.
package composer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const defaultPersona = "You are CivicBot, an AI legal assistant specializing in Indian law and civic procedures. Provide concise and accurate information."

// ErrMalformedEnvelope is returned when a response body does not carry a
// first choice with a message.
var ErrMalformedEnvelope = errors.New("malformed response envelope")

// Message is one role-tagged chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Location is the user's self-declared place, used to ground answers in
// local procedure.
type Location struct {
	State string `json:"state"`
	City  string `json:"city"`
}

func (l Location) IsZero() bool {
	return strings.TrimSpace(l.State) == "" && strings.TrimSpace(l.City) == ""
}

func (l Location) String() string {
	parts := make([]string, 0, 2)
	if c := strings.TrimSpace(l.City); c != "" {
		parts = append(parts, c)
	}
	if s := strings.TrimSpace(l.State); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

// Composer builds prompts around a fixed persona preamble.
type Composer struct {
	Persona string
}

// New creates a Composer with the CivicBot persona.
func New() *Composer {
	return &Composer{Persona: defaultPersona}
}

// Compose wraps query into a one-turn message list. History is never
// included; each query stands alone.
func (c *Composer) Compose(query string, loc Location) []Message {
	var sb strings.Builder
	sb.WriteString(c.Persona)
	if !loc.IsZero() {
		fmt.Fprintf(&sb, " User location: %s.", loc)
	}
	sb.WriteString(" User query: ")
	sb.WriteString(query)

	return []Message{{Role: "user", Content: sb.String()}}
}

type envelope struct {
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ExtractReply returns choices[0].message.content from a chat completions
// response body.
func ExtractReply(body []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if len(env.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedEnvelope)
	}
	if env.Choices[0].Message == nil {
		return "", fmt.Errorf("%w: first choice has no message", ErrMalformedEnvelope)
	}
	return env.Choices[0].Message.Content, nil
}
