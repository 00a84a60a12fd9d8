package model

import (
	"time"

	"github.com/google/uuid"
)

// FailedLogEntry keeps the raw body of an ingestion attempt that could not be
// normalized, together with the error that stopped it.
type FailedLogEntry struct {
	ID           uuid.UUID `db:"id" json:"id"`
	RawData      string    `db:"raw_data" json:"raw_data"`
	ErrorMessage string    `db:"error_message" json:"error_message"`
	ReceivedAt   time.Time `db:"received_at" json:"received_at"`
	IPAddress    string    `db:"ip_address" json:"ip_address"`
}
