package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultEmployee is stored when a payload does not name its submitter.
const DefaultEmployee = "unauthorized"

// LogEntry is one normalized browser-activity record. Rows are written once
// and never updated.
type LogEntry struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Time         string    `db:"time" json:"time"`
	URL          string    `db:"url" json:"url"`
	Method       string    `db:"method" json:"method"`
	Type         string    `db:"type" json:"type"`
	Initiator    string    `db:"initiator" json:"initiator"`
	TabID        string    `db:"tab_id" json:"tab_id"`
	RequestID    string    `db:"request_id" json:"request_id"`
	RequestBody  []byte    `db:"request_body" json:"request_body"`
	Response     []byte    `db:"response" json:"response"`
	StatusCode   string    `db:"status_code" json:"status_code"`
	Source       string    `db:"source" json:"source"`
	HTML         []byte    `db:"html" json:"-"`
	ResponseTime string    `db:"response_time" json:"response_time"`
	Employee     string    `db:"employee" json:"employee"`
	ReceivedAt   time.Time `db:"received_at" json:"received_at"`
	IPAddress    string    `db:"ip_address" json:"ip_address"`
}

// HasHTML reports whether a page snapshot was captured with the entry.
func (e *LogEntry) HasHTML() bool {
	return len(e.HTML) > 0
}
