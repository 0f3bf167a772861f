package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/civicbot/internal/catalog"
	"github.com/kalambet/civicbot/internal/chat"
	"github.com/kalambet/civicbot/internal/composer"
	"github.com/kalambet/civicbot/internal/config"
	"github.com/kalambet/civicbot/internal/render"
	"github.com/kalambet/civicbot/internal/report"
	"github.com/kalambet/civicbot/internal/storage"
	"github.com/kalambet/civicbot/internal/transcript"
)

var ctx = context.Background()

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// echoResponder answers every query with a fixed prefix.
type echoResponder struct {
	loc composer.Location
}

func (e *echoResponder) Respond(_ context.Context, text string) (string, error) {
	return "echo: " + text, nil
}

func (e *echoResponder) SetLocation(loc composer.Location) { e.loc = loc }

func (e *echoResponder) Location() composer.Location { return e.loc }

func newTestREPL(t *testing.T) (*repl, *bytes.Buffer) {
	t.Helper()
	store := openTestStore(t)
	history := transcript.New(store, quietLogger)
	if err := history.Load(); err != nil {
		t.Fatal(err)
	}
	ids, err := report.NewIDGenerator(1)
	if err != nil {
		t.Fatal(err)
	}
	ctrl := chat.New(&echoResponder{}, history, catalog.Default(), report.NewService(store, ids, quietLogger), quietLogger)

	var out bytes.Buffer
	return newREPL(ctrl, &out, &render.Terminal{}), &out
}

func withNoColor(t *testing.T) {
	t.Helper()
	old := noColor
	noColor = true
	t.Cleanup(func() { noColor = old })
}

func TestREPL_PlainMessage(t *testing.T) {
	withNoColor(t)
	r, out := newTestREPL(t)

	if quit := r.handle(ctx, "  what is RTI?  "); quit {
		t.Fatal("plain message should not end the session")
	}
	if !strings.Contains(out.String(), "echo: what is RTI?") {
		t.Errorf("output = %q, want the reply", out.String())
	}

	msgs := r.ctrl.Messages()
	if len(msgs) != 3 {
		t.Fatalf("transcript has %d messages, want 3", len(msgs))
	}
	if msgs[1].Sender != transcript.SenderUser || msgs[1].Content != "what is RTI?" {
		t.Errorf("user message = %+v", msgs[1])
	}
}

func TestREPL_BlankInputIgnored(t *testing.T) {
	r, out := newTestREPL(t)

	r.handle(ctx, "   ")
	if out.Len() != 0 {
		t.Errorf("blank input produced output %q", out.String())
	}
	if n := len(r.ctrl.Messages()); n != 1 {
		t.Errorf("transcript has %d messages, want only the welcome", n)
	}
}

func TestREPL_Topics(t *testing.T) {
	withNoColor(t)
	r, out := newTestREPL(t)

	r.handle(ctx, "/topics")
	for _, topic := range catalog.Default().Topics {
		if !strings.Contains(out.String(), topic.ID) {
			t.Errorf("output missing topic %q", topic.ID)
		}
	}
}

func TestREPL_SelectTopic(t *testing.T) {
	withNoColor(t)
	r, out := newTestREPL(t)
	topic := catalog.Default().Topics[0]

	r.handle(ctx, "/topic "+topic.ID)
	if !strings.Contains(out.String(), "echo: "+topic.Prompt()) {
		t.Errorf("output = %q, want reply to %q", out.String(), topic.Prompt())
	}
}

func TestREPL_UnknownTopic(t *testing.T) {
	withNoColor(t)
	r, out := newTestREPL(t)

	r.handle(ctx, "/topic nope")
	if !strings.Contains(out.String(), "unknown topic") {
		t.Errorf("output = %q, want unknown topic notice", out.String())
	}
	if n := len(r.ctrl.Messages()); n != 1 {
		t.Errorf("transcript has %d messages, want 1", n)
	}
}

func TestREPL_Location(t *testing.T) {
	withNoColor(t)
	r, out := newTestREPL(t)

	r.handle(ctx, "/location")
	if !strings.Contains(out.String(), "No location set") {
		t.Errorf("output = %q", out.String())
	}

	r.handle(ctx, "/location Pune, Maharashtra")
	loc := r.ctrl.Location()
	if loc.City != "Pune" || loc.State != "Maharashtra" {
		t.Errorf("location = %+v", loc)
	}
	if !strings.Contains(out.String(), "Location set to Pune, Maharashtra") {
		t.Errorf("output = %q", out.String())
	}
}

func TestREPL_NewConversation(t *testing.T) {
	withNoColor(t)
	r, _ := newTestREPL(t)

	r.handle(ctx, "hello")
	r.handle(ctx, "/new")

	msgs := r.ctrl.Messages()
	if len(msgs) != 1 || msgs[0].Content != transcript.Welcome {
		t.Errorf("after /new transcript = %+v, want only the welcome", msgs)
	}
}

func TestREPL_Resources(t *testing.T) {
	withNoColor(t)
	r, out := newTestREPL(t)

	r.handle(ctx, "/resources zzzz-no-match")
	if !strings.Contains(out.String(), "No resources found.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestREPL_QuitAndUnknown(t *testing.T) {
	withNoColor(t)
	r, out := newTestREPL(t)

	if r.handle(ctx, "/bogus") {
		t.Error("/bogus should not end the session")
	}
	if !strings.Contains(out.String(), "Unknown command /bogus") {
		t.Errorf("output = %q", out.String())
	}
	for _, q := range []string{"/quit", "/exit", "/q"} {
		if !r.handle(ctx, q) {
			t.Errorf("%s should end the session", q)
		}
	}
}

func TestPrintResources(t *testing.T) {
	withNoColor(t)
	var buf bytes.Buffer

	printResources(&buf, catalog.Default().FindResources(catalog.ResourceForm, ""))
	out := buf.String()
	for _, r := range catalog.Default().FindResources(catalog.ResourceForm, "") {
		if !strings.Contains(out, r.Title) {
			t.Errorf("output missing %q", r.Title)
		}
	}
	if strings.Contains(out, "[guide]") {
		t.Error("form filter let a guide through")
	}
}

func TestReportCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"report"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestResourcesCommand_BadType(t *testing.T) {
	defer rootCmd.SetArgs(nil)
	defer resourcesCmd.Flags().Set("type", "")

	rootCmd.SetArgs([]string{"resources", "--type", "video"})
	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "--type") {
		t.Errorf("error = %v, want a --type error", err)
	}
}

func TestReadAttachments(t *testing.T) {
	dir := t.TempDir()

	png := filepath.Join(dir, "photo.png")
	pngData := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	if err := os.WriteFile(png, pngData, 0o644); err != nil {
		t.Fatal(err)
	}

	big := filepath.Join(dir, "huge.png")
	f, err := os.Create(big)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(report.MaxAttachmentSize + 1); err != nil {
		t.Fatal(err)
	}
	f.Close()

	files, err := readAttachments([]string{png, big})
	if err != nil {
		t.Fatalf("readAttachments: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if files[0].ContentType != "image/png" {
		t.Errorf("content type = %q, want image/png", files[0].ContentType)
	}
	if files[1].Data != nil {
		t.Error("oversized file should not be read")
	}

	kept, rejected := report.FilterAttachments(files)
	if len(kept) != 1 || len(rejected) != 1 || rejected[0].Name != "huge.png" {
		t.Errorf("kept = %+v, rejected = %+v", kept, rejected)
	}

	if _, err := readAttachments([]string{filepath.Join(dir, "missing.jpg")}); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestPrintHistory(t *testing.T) {
	withNoColor(t)
	var buf bytes.Buffer
	ts := time.Date(2025, 3, 1, 9, 30, 0, 0, time.Local)

	printHistory(&buf, []transcript.Message{
		{Content: "hi", Sender: transcript.SenderUser, Timestamp: ts},
		{Content: "hello", Sender: transcript.SenderBot, Timestamp: ts},
	})
	want := "[09:30] you: hi\n[09:30] civicbot: hello\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestBuildApp_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Hi there"}}]}`)
	}))
	defer srv.Close()

	cfg := config.Config{}
	cfg.OpenRouter.APIKey = "test-key"
	cfg.OpenRouter.BaseURL = srv.URL
	cfg.Governor.MinInterval = time.Millisecond

	a, err := buildApp(ctx, cfg, openTestStore(t), quietLogger)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}

	msg, err := a.controller.Send(ctx, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.Content != "Hi there" {
		t.Errorf("reply = %q, want Hi there", msg.Content)
	}
	if got := a.governor.Stats().Dispatched; got != 1 {
		t.Errorf("dispatched = %d, want 1", got)
	}
}

func TestBuildApp_MissingKey(t *testing.T) {
	cfg := config.Config{}
	cfg.Governor.MinInterval = time.Millisecond

	a, err := buildApp(ctx, cfg, openTestStore(t), quietLogger)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}

	msg, err := a.controller.Send(ctx, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.Content != chat.MissingCredentialsReply {
		t.Errorf("reply = %q", msg.Content)
	}
	if got := a.governor.Stats().Dispatched; got != 0 {
		t.Errorf("dispatched = %d, want 0", got)
	}
}

func TestAPIClientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"m","has_credentials":true,"pending":2,"dispatched":7}`))
	}))
	defer srv.Close()

	client := &apiClient{baseURL: srv.URL, httpClient: srv.Client()}
	st, err := client.status(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Model != "m" || !st.HasCredentials || st.Pending != 2 || st.Dispatched != 7 {
		t.Errorf("status = %+v", st)
	}
}

func TestAPIClient_Unreachable(t *testing.T) {
	client := newAPIClient(1, time.Second)
	_, err := client.status(ctx)
	if !errors.Is(err, errServerDown) {
		t.Errorf("err = %v, want errServerDown", err)
	}
}

func TestAPIClientStatus_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"store closed","type":"unavailable"}}`))
	}))
	defer srv.Close()

	client := &apiClient{baseURL: srv.URL, httpClient: srv.Client()}
	_, err := client.status(ctx)
	if errors.Is(err, errServerDown) {
		t.Fatalf("a reachable server must not report errServerDown: %v", err)
	}
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %T %v, want *apiError", err, err)
	}
	if apiErr.Status != http.StatusServiceUnavailable || apiErr.Type != "unavailable" || apiErr.Message != "store closed" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	var v any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "bad request") {
		t.Errorf("error = %q, want status and body", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if result := colorize(colorRed, "test"); strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}

	noColor = false
	if result := colorize(colorRed, "test"); !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestPrintHelpers(t *testing.T) {
	withNoColor(t)
	var buf bytes.Buffer
	old := diag
	diag = &buf
	defer func() { diag = old }()

	printSuccess("Report logged as %s", "CB1")
	printWarning("Skipping %s", "a.exe")
	printStatus("Queue", "%d pending", 2)

	want := "✓ Report logged as CB1\n⚠ Skipping a.exe\n  Queue: 2 pending\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"pothole on MG road", 7, "pothole..."},
		{"सड़क टूटी है", 4, "सड़क..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "data"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removal")
	}
}
