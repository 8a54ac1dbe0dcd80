package entity

import "time"

// HistoryRecord is one stored analysis. Rows are immutable once written.
type HistoryRecord struct {
	ID          int64     `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	FullPayload string    `json:"full_payload"`
}
