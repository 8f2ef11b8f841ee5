package dto

import "encoding/json"

// ClassificationRequest is the body of POST /api/classification.
type ClassificationRequest struct {
	ImagePath string `json:"image_path"`
}

// EstimatedData is the classification outcome returned on success.
type EstimatedData struct {
	Class      int64   `json:"class"`
	Confidence float64 `json:"confidence"`
}

// ClassificationResponse is the body returned by POST /api/classification.
type ClassificationResponse struct {
	Success       bool
	Message       string
	EstimatedData *EstimatedData
}

// MarshalJSON always emits estimated_data, as an empty object on failure.
func (r ClassificationResponse) MarshalJSON() ([]byte, error) {
	var data any = struct{}{}
	if r.Success && r.EstimatedData != nil {
		data = r.EstimatedData
	}
	return json.Marshal(&struct {
		Success       bool   `json:"success"`
		Message       string `json:"message"`
		EstimatedData any    `json:"estimated_data"`
	}{
		Success:       r.Success,
		Message:       r.Message,
		EstimatedData: data,
	})
}

// ClassificationEvent is broadcast to stream viewers after each successful classification.
type ClassificationEvent struct {
	RequestID  string   `json:"requestId"`
	ImagePath  string   `json:"imagePath"`
	ClassID    int64    `json:"classId"`
	Label      string   `json:"label"`
	Confidence float64  `json:"confidence"`
	NewClass   bool     `json:"newClass"`
	Similarity *float64 `json:"similarity,omitempty"` // nil when no stored class was comparable
}
