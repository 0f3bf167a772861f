package report

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MaxAttachmentSize is the per-file upload limit.
const MaxAttachmentSize = 10 << 20

const pdfType = "application/pdf"

// Attachment is an uploaded file. Data is held only while the report is
// being composed and is never stored.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Pages       int    `json:"pages,omitempty"`
	Data        []byte `json:"-"`
}

// IsImage reports whether the attachment is an image.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.ContentType, "image/")
}

// NewAttachment builds an attachment from raw bytes. An empty contentType
// is sniffed from the data.
func NewAttachment(name, contentType string, data []byte) Attachment {
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return Attachment{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}
}

// Rejection records why a file was left out.
type Rejection struct {
	Name   string
	Reason string
}

// FilterAttachments keeps images and PDFs up to MaxAttachmentSize. Other
// files are dropped, not treated as an error. PDFs must parse; their page
// count is filled in.
func FilterAttachments(files []Attachment) (kept []Attachment, rejected []Rejection) {
	for _, f := range files {
		switch {
		case f.Size > MaxAttachmentSize:
			rejected = append(rejected, Rejection{f.Name, "larger than " + FormatSize(MaxAttachmentSize)})
		case f.IsImage():
			kept = append(kept, f)
		case f.ContentType == pdfType:
			pages, err := pdfPages(f.Data)
			if err != nil {
				rejected = append(rejected, Rejection{f.Name, "unreadable PDF: " + err.Error()})
				continue
			}
			f.Pages = pages
			kept = append(kept, f)
		default:
			rejected = append(rejected, Rejection{f.Name, "unsupported type " + f.ContentType})
		}
	}
	return kept, rejected
}

func pdfPages(data []byte) (n int, err error) {
	// The parser panics on some truncated inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}

type attachmentSummary struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Pages       int    `json:"pages,omitempty"`
}

func summaries(as []Attachment) []attachmentSummary {
	out := make([]attachmentSummary, len(as))
	for i, a := range as {
		out[i] = attachmentSummary{a.Name, a.ContentType, a.Size, a.Pages}
	}
	return out
}

// FormatSize renders a byte count as "0 Bytes", "512 Bytes", "1.5 KB" or
// "2.25 MB", with at most two decimals.
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	v := float64(bytes) / math.Pow(1024, float64(i))
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + units[i]
}
