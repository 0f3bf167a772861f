package composer

import (
	"errors"
	"strings"
	"testing"
)

func TestCompose_SingleUserTurn(t *testing.T) {
	c := New()

	msgs := c.Compose("hello", Location{})
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Role != "user" {
		t.Errorf("role = %q, want user", msgs[0].Role)
	}
	want := defaultPersona + " User query: hello"
	if msgs[0].Content != want {
		t.Errorf("content = %q, want %q", msgs[0].Content, want)
	}
}

func TestCompose_WithLocation(t *testing.T) {
	c := New()

	msgs := c.Compose("how do I file an FIR?", Location{State: "Maharashtra", City: "Mumbai"})
	content := msgs[0].Content
	if !strings.Contains(content, "User location: Mumbai, Maharashtra.") {
		t.Errorf("location missing from prompt: %q", content)
	}
	if !strings.HasSuffix(content, "User query: how do I file an FIR?") {
		t.Errorf("query should come last: %q", content)
	}
}

func TestLocation_String(t *testing.T) {
	tests := []struct {
		loc  Location
		want string
	}{
		{Location{}, ""},
		{Location{City: "Pune"}, "Pune"},
		{Location{State: "Kerala"}, "Kerala"},
		{Location{State: "Kerala", City: "Kochi"}, "Kochi, Kerala"},
	}
	for _, tt := range tests {
		if got := tt.loc.String(); got != tt.want {
			t.Errorf("%+v.String() = %q, want %q", tt.loc, got, tt.want)
		}
	}
}

func TestExtractReply(t *testing.T) {
	got, err := ExtractReply([]byte(`{"id":"gen-1","choices":[{"message":{"role":"assistant","content":"Hi there"}}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hi there" {
		t.Errorf("reply = %q, want %q", got, "Hi there")
	}
}

func TestExtractReply_Malformed(t *testing.T) {
	bodies := []string{
		`not json`,
		`{"choices":[]}`,
		`{"id":"gen-1"}`,
		`{"choices":[{"finish_reason":"stop"}]}`,
	}
	for _, b := range bodies {
		_, err := ExtractReply([]byte(b))
		if !errors.Is(err, ErrMalformedEnvelope) {
			t.Errorf("ExtractReply(%s) error = %v, want ErrMalformedEnvelope", b, err)
		}
	}
}
