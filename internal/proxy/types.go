package proxy

import "github.com/kalambet/civicbot/internal/composer"

// ChatRequest is the chat completions request body.
type ChatRequest struct {
	Model    string             `json:"model"`
	Messages []composer.Message `json:"messages"`
}

// Model represents a model entry returned by the /models endpoint.
type Model struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Object  string `json:"object,omitempty"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ModelList is the response from /models.
type ModelList struct {
	Object string  `json:"object,omitempty"`
	Data   []Model `json:"data"`
}

// errorBody covers both the OpenRouter {"error":{"message":...}} shape and a
// bare {"message":...}.
type errorBody struct {
	Message string `json:"message"`
	Error   *struct {
		Message string `json:"message"`
		Code    any    `json:"code,omitempty"`
	} `json:"error"`
}

func (b errorBody) message() string {
	if b.Error != nil && b.Error.Message != "" {
		return b.Error.Message
	}
	return b.Message
}
