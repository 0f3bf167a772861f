// Package report validates civic issue reports, filters their attachments
// and records them locally under a complaint id.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/civicbot/internal/storage"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid report")

var issueTypes = []string{
	"Water Supply Issues",
	"Road Repair Needed",
	"Garbage Collection",
	"Street Light Problem",
	"Noise Pollution",
	"Drainage Issues",
	"Traffic Signal Problem",
	"Public Toilet Maintenance",
	"Illegal Construction",
	"Air Pollution",
	"Other",
}

// Types returns the selectable issue types in display order.
func Types() []string {
	out := make([]string, len(issueTypes))
	copy(out, issueTypes)
	return out
}

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// ParseUrgency accepts low, medium or high in any case. An empty string
// means medium.
func ParseUrgency(s string) (Urgency, error) {
	switch u := Urgency(strings.ToLower(strings.TrimSpace(s))); u {
	case "":
		return UrgencyMedium, nil
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return u, nil
	default:
		return "", fmt.Errorf("%w: urgency must be low, medium or high, got %q", ErrInvalid, s)
	}
}

// Report is a report under composition.
type Report struct {
	Type        string       `json:"type"`
	Location    string       `json:"location"`
	Description string       `json:"description"`
	Urgency     Urgency      `json:"urgency"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Validate checks required fields and normalizes urgency in place.
func (r *Report) Validate() error {
	r.Type = strings.TrimSpace(r.Type)
	r.Location = strings.TrimSpace(r.Location)
	r.Description = strings.TrimSpace(r.Description)

	if r.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalid)
	}
	if !knownType(r.Type) {
		return fmt.Errorf("%w: unknown issue type %q", ErrInvalid, r.Type)
	}
	if r.Location == "" {
		return fmt.Errorf("%w: location is required", ErrInvalid)
	}
	if r.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalid)
	}
	u, err := ParseUrgency(string(r.Urgency))
	if err != nil {
		return err
	}
	r.Urgency = u
	return nil
}

func knownType(t string) bool {
	for _, k := range issueTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Receipt is what the user gets back after submitting.
type Receipt struct {
	ID          string
	SubmittedAt time.Time
	Message     string
}

// Store persists submitted reports.
type Store interface {
	SaveReport(r storage.Report) error
}

// Service accepts reports. Nothing is sent over the network; reports are
// only logged locally.
type Service struct {
	store  Store
	ids    *IDGenerator
	now    func() time.Time
	logger *slog.Logger
}

func NewService(store Store, ids *IDGenerator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, ids: ids, now: time.Now, logger: logger}
}

// Submit validates r, assigns a complaint id, stores it and returns the
// acknowledgment.
func (s *Service) Submit(r Report) (Receipt, error) {
	if err := r.Validate(); err != nil {
		return Receipt{}, err
	}

	id := s.ids.Next()
	now := s.now().UTC()

	attachments, err := json.Marshal(summaries(r.Attachments))
	if err != nil {
		return Receipt{}, fmt.Errorf("encoding attachments: %w", err)
	}

	if err := s.store.SaveReport(storage.Report{
		ID:          id,
		CreatedAt:   now,
		Type:        r.Type,
		Location:    r.Location,
		Description: r.Description,
		Urgency:     string(r.Urgency),
		Attachments: string(attachments),
	}); err != nil {
		return Receipt{}, fmt.Errorf("saving report: %w", err)
	}

	s.logger.Info("report logged", "id", id, "type", r.Type, "urgency", r.Urgency, "attachments", len(r.Attachments))
	return Receipt{ID: id, SubmittedAt: now, Message: Acknowledgment(r, id)}, nil
}

// Acknowledgment renders the markdown confirmation for a submitted report.
func Acknowledgment(r Report, id string) string {
	var attachmentText string
	if n := len(r.Attachments); n > 0 {
		attachmentText = fmt.Sprintf(" with %d attachment(s)", n)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "I've received your **%s** priority report about \"%s\" at %s%s.\n\n", r.Urgency, r.Type, r.Location, attachmentText)
	sb.WriteString("Your report has been logged and will be forwarded to the relevant authorities. ")
	sb.WriteString("You should receive an acknowledgment within 24-48 hours.\n\n")
	fmt.Fprintf(&sb, "**Complaint ID:** %s\n\n", id)
	sb.WriteString("For follow-up, you can contact:\n")
	sb.WriteString("- Local Municipal Corporation\n")
	sb.WriteString("- Public Grievance Portal: [https://pgportal.gov.in/](https://pgportal.gov.in/)\n")
	sb.WriteString("- Citizen Service Centers\n\n")
	sb.WriteString("Thank you for helping improve our community!")
	return sb.String()
}
