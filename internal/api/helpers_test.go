package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kalambet/civicbot/internal/assistant"
	"github.com/kalambet/civicbot/internal/catalog"
	"github.com/kalambet/civicbot/internal/chat"
	"github.com/kalambet/civicbot/internal/clock"
	"github.com/kalambet/civicbot/internal/governor"
	"github.com/kalambet/civicbot/internal/proxy"
	"github.com/kalambet/civicbot/internal/report"
	"github.com/kalambet/civicbot/internal/storage"
	"github.com/kalambet/civicbot/internal/transcript"
)

type testEnv struct {
	Controller *chat.Controller
	Store      *storage.Store
	Governor   *governor.Governor
}

// newTestEnv wires a controller against an upstream served by handler.
func newTestEnv(t *testing.T, handler http.HandlerFunc) testEnv {
	t.Helper()
	upstream := httptest.NewServer(handler)
	t.Cleanup(upstream.Close)

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	gov := governor.New(context.Background(), governor.Options{Clock: fc})
	client := proxy.NewClient(proxy.Options{APIKey: "test-key", BaseURL: upstream.URL, Clock: fc})

	tr := transcript.New(store, nil)
	if err := tr.Load(); err != nil {
		t.Fatalf("loading transcript: %v", err)
	}
	ids, err := report.NewIDGenerator(1)
	if err != nil {
		t.Fatalf("id generator: %v", err)
	}
	ctrl := chat.New(assistant.New(gov, client, nil), tr, catalog.Default(), report.NewService(store, ids, nil), nil)
	return testEnv{Controller: ctrl, Store: store, Governor: gov}
}

func replyWith(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` + content + `"}}]}`))
	}
}
