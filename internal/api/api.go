package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/kalambet/civicbot/internal/catalog"
	"github.com/kalambet/civicbot/internal/chat"
	"github.com/kalambet/civicbot/internal/composer"
	"github.com/kalambet/civicbot/internal/governor"
	"github.com/kalambet/civicbot/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// StatsSource exposes the outbound queue state.
type StatsSource interface {
	Stats() governor.Stats
}

// ReportLister lists locally logged reports.
type ReportLister interface {
	ListReports(limit int) ([]storage.Report, error)
}

// Deps holds everything the HTTP surface needs.
type Deps struct {
	Controller *chat.Controller
	Governor   StatsSource
	Reports    ReportLister
	Logger     *slog.Logger

	// Model and HasCredentials are reported by /v1/status.
	Model          string
	HasCredentials bool

	// SendLimiter throttles message posts from the page and the API. Nil
	// disables throttling.
	SendLimiter *rate.Limiter
}

// NewSendLimiter allows one message per interval with a small burst.
func NewSendLimiter(interval time.Duration, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(interval), burst)
}

// NewHandler returns the HTTP surface: the transcript page and the JSON API.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Get("/", handlePage(deps))
	r.Post("/send", handlePageSend(deps))
	r.Post("/new", handlePageNew(deps))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/messages", handleListMessages(deps))
		r.With(throttle(deps.SendLimiter)).Post("/messages", handleSendMessage(deps))
		r.Delete("/messages", handleResetMessages(deps))

		r.Get("/topics", handleListTopics(deps))
		r.With(throttle(deps.SendLimiter)).Post("/topics/{id}", handleSelectTopic(deps))
		r.Get("/resources", handleListResources(deps))

		r.Put("/location", handleSetLocation(deps))

		r.Get("/report-types", handleReportTypes)
		r.Get("/reports", handleListReports(deps))
		r.Post("/reports", handleSubmitReport(deps))

		r.Get("/status", handleStatus(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func throttle(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l != nil && !l.Allow() {
				httpError(w, http.StatusTooManyRequests, "rate_limit_error", "sending too fast, wait a moment")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type messagesResponse struct {
	Messages any  `json:"messages"`
	Typing   bool `json:"typing"`
}

func handleListMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, messagesResponse{
			Messages: deps.Controller.Messages(),
			Typing:   deps.Controller.Typing(),
		})
	}
}

type sendRequest struct {
	Content string `json:"content"`
}

func handleSendMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		msg, err := deps.Controller.Send(r.Context(), req.Content)
		if errors.Is(err, chat.ErrEmptyMessage) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}
		if err != nil {
			deps.Logger.Error("send failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": msg})
	}
}

func handleResetMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Controller.NewConversation(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, messagesResponse{Messages: deps.Controller.Messages()})
	}
}

func handleListTopics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"topics": deps.Controller.Catalog().Topics})
	}
}

func handleSelectTopic(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := deps.Controller.SelectTopic(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, chat.ErrUnknownTopic) {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": msg})
	}
}

func handleListResources(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		typ := catalog.ResourceType(r.URL.Query().Get("type"))
		res := deps.Controller.Catalog().FindResources(typ, r.URL.Query().Get("q"))
		writeJSON(w, http.StatusOK, map[string]any{"resources": res})
	}
}

type locationRequest struct {
	City  string `json:"city"`
	State string `json:"state"`
}

func handleSetLocation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req locationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		deps.Controller.SetLocation(composer.Location{
			City:  strings.TrimSpace(req.City),
			State: strings.TrimSpace(req.State),
		})
		writeJSON(w, http.StatusOK, map[string]any{"location": deps.Controller.Location()})
	}
}

func handleListReports(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			limit = min(n, 200)
		}
		reports, err := deps.Reports.ListReports(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing reports: %v", err)
			return
		}
		out := make([]reportView, len(reports))
		for i, rep := range reports {
			out[i] = newReportView(rep)
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": out})
	}
}

type statusResponse struct {
	Model          string    `json:"model"`
	HasCredentials bool      `json:"has_credentials"`
	Pending        int       `json:"pending"`
	Draining       bool      `json:"draining"`
	Dispatched     uint64    `json:"dispatched"`
	LastStart      time.Time `json:"last_start,omitzero"`
	Typing         bool      `json:"typing"`
	Location       string    `json:"location,omitempty"`
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := deps.Governor.Stats()
		writeJSON(w, http.StatusOK, statusResponse{
			Model:          deps.Model,
			HasCredentials: deps.HasCredentials,
			Pending:        st.Pending,
			Draining:       st.Draining,
			Dispatched:     st.Dispatched,
			LastStart:      st.LastStart,
			Typing:         deps.Controller.Typing(),
			Location:       deps.Controller.Location().String(),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
