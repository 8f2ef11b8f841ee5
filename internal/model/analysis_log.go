package model

// AnalysisLogEntry records one classification attempt.
// Class, Confidence and the timestamps are set only on success.
type AnalysisLogEntry struct {
	ID                int64    `json:"id"`
	ImagePath         *string  `json:"image_path,omitempty"`
	Success           bool     `json:"success"`
	Message           string   `json:"message"`
	Class             *int64   `json:"class,omitempty"`
	Confidence        *float64 `json:"confidence,omitempty"`
	RequestTimestamp  *string  `json:"request_timestamp,omitempty"`
	ResponseTimestamp *string  `json:"response_timestamp,omitempty"`
}
