package export

import (
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/akave-ai/browserlog/internal/model"
)

// MaxCellBytes is the largest cell spreadsheet tools accept. Longer html
// cells are cut to htmlKeep bytes followed by "...".
const (
	MaxCellBytes = 32767
	htmlKeep     = 32760
)

// Columns is the export header, in order.
var Columns = []string{
	"employee", "received_at", "time", "url", "method", "type", "initiator",
	"tab_id", "request_id", "request_body", "response", "status_code",
	"source", "html", "response_time", "ip_address",
}

// Writer streams log entries as CSV rows.
type Writer struct {
	csv *csv.Writer
}

// NewWriter writes the header row to w.
func NewWriter(w io.Writer) (*Writer, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return nil, err
	}
	return &Writer{csv: cw}, nil
}

func (w *Writer) Write(e *model.LogEntry) error {
	return w.csv.Write(Row(e))
}

// Flush writes buffered rows and reports any earlier write error.
func (w *Writer) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}

// Row renders e in Columns order.
func Row(e *model.LogEntry) []string {
	return []string{
		e.Employee,
		e.ReceivedAt.UTC().Format(time.RFC3339Nano),
		e.Time,
		e.URL,
		e.Method,
		e.Type,
		e.Initiator,
		e.TabID,
		e.RequestID,
		text(e.RequestBody),
		text(e.Response),
		e.StatusCode,
		e.Source,
		truncateHTML(e.HTML),
		e.ResponseTime,
		e.IPAddress,
	}
}

func text(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

func truncateHTML(b []byte) string {
	if len(b) > MaxCellBytes {
		b = b[:htmlKeep]
		return text(b) + "..."
	}
	return text(b)
}
