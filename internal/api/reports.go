package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kalambet/civicbot/internal/report"
	"github.com/kalambet/civicbot/internal/storage"
)

// Up to ten full-size attachments plus form fields.
const maxReportBodySize = 10*report.MaxAttachmentSize + 1<<20

func handleReportTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"types":     report.Types(),
		"urgencies": []report.Urgency{report.UrgencyLow, report.UrgencyMedium, report.UrgencyHigh},
	})
}

type submitReportResponse struct {
	ID       string              `json:"id"`
	Message  any                 `json:"message"`
	Accepted []report.Attachment `json:"attachments"`
	Rejected []rejectionView     `json:"rejected,omitempty"`
}

type rejectionView struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// handleSubmitReport accepts multipart/form-data with the report fields and
// any number of "attachments" files.
func handleSubmitReport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxReportBodySize)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		files, err := readAttachments(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		kept, rejected := report.FilterAttachments(files)

		rep := report.Report{
			Type:        r.FormValue("type"),
			Location:    r.FormValue("location"),
			Description: r.FormValue("description"),
			Urgency:     report.Urgency(r.FormValue("urgency")),
			Attachments: kept,
		}

		msg, receipt, err := deps.Controller.SubmitReport(rep)
		if errors.Is(err, report.ErrInvalid) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			deps.Logger.Error("report submission failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}

		resp := submitReportResponse{ID: receipt.ID, Message: msg, Accepted: kept}
		if resp.Accepted == nil {
			resp.Accepted = []report.Attachment{}
		}
		for _, rj := range rejected {
			resp.Rejected = append(resp.Rejected, rejectionView{Name: rj.Name, Reason: rj.Reason})
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func readAttachments(r *http.Request) ([]report.Attachment, error) {
	headers := r.MultipartForm.File["attachments"]
	out := make([]report.Attachment, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > report.MaxAttachmentSize {
			// Skip reading; FilterAttachments drops it on size.
			out = append(out, report.Attachment{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Size: fh.Size})
			continue
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", fh.Filename, err)
		}
		out = append(out, report.NewAttachment(fh.Filename, fh.Header.Get("Content-Type"), data))
	}
	return out, nil
}

type reportView struct {
	ID          string          `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	Type        string          `json:"type"`
	Location    string          `json:"location"`
	Description string          `json:"description"`
	Urgency     string          `json:"urgency"`
	Attachments json.RawMessage `json:"attachments"`
}

func newReportView(r storage.Report) reportView {
	atts := json.RawMessage(r.Attachments)
	if !json.Valid(atts) {
		atts = json.RawMessage("[]")
	}
	return reportView{
		ID:          r.ID,
		CreatedAt:   r.CreatedAt,
		Type:        r.Type,
		Location:    r.Location,
		Description: r.Description,
		Urgency:     r.Urgency,
		Attachments: atts,
	}
}
