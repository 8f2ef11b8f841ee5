// Package audit records every classification attempt in the analysis log.
package audit

import (
	"context"
	"fmt"
	"time"

	"imageclassifier/internal/errs"
	"imageclassifier/internal/model"
)

// SuccessMessage is stored for successful attempts.
const SuccessMessage = "Request to Google Vision API succeeded"

// TimestampLayout is RFC 3339 in UTC with millisecond precision, e.g. 2024-05-01T12:00:00.000Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Store persists analysis log entries.
type Store interface {
	Insert(ctx context.Context, entry *model.AnalysisLogEntry) (int64, error)
}

// SuccessEntry describes a completed classification.
type SuccessEntry struct {
	ImagePath   string
	Class       int64
	Confidence  float64
	RequestedAt time.Time
	RespondedAt time.Time
}

// Recorder writes analysis log entries.
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// FormatTimestamp renders t in UTC and checks that the text parses back to the same instant.
func FormatTimestamp(t time.Time) (string, error) {
	s := t.UTC().Format(TimestampLayout)
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return "", fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	if !parsed.Equal(t.UTC().Truncate(time.Millisecond)) {
		return "", fmt.Errorf("timestamp %q does not round-trip", s)
	}
	return s, nil
}

// Timestamps validates both timestamps of an attempt.
// It fails with errs.ErrRequestTimestamp or errs.ErrResponseTimestamp.
func Timestamps(requestedAt, respondedAt time.Time) (request, response string, err error) {
	if request, err = FormatTimestamp(requestedAt); err != nil {
		return "", "", errs.Wrap(errs.ErrRequestTimestamp, err)
	}
	if response, err = FormatTimestamp(respondedAt); err != nil {
		return "", "", errs.Wrap(errs.ErrResponseTimestamp, err)
	}
	return request, response, nil
}

// RecordSuccess validates the timestamps and stores a successful attempt.
// Nothing is stored when a timestamp is invalid; the caller records the failure instead.
func (r *Recorder) RecordSuccess(ctx context.Context, e SuccessEntry) (int64, error) {
	request, response, err := Timestamps(e.RequestedAt, e.RespondedAt)
	if err != nil {
		return 0, err
	}

	class, confidence, imagePath := e.Class, e.Confidence, e.ImagePath
	id, err := r.store.Insert(ctx, &model.AnalysisLogEntry{
		ImagePath:         &imagePath,
		Success:           true,
		Message:           SuccessMessage,
		Class:             &class,
		Confidence:        &confidence,
		RequestTimestamp:  &request,
		ResponseTimestamp: &response,
	})
	if err != nil {
		return 0, errs.Ensure(errs.ErrAnalysisLogStore, err)
	}
	return id, nil
}

// RecordFailure stores a failed attempt with the human-readable message of cause's code.
func (r *Recorder) RecordFailure(ctx context.Context, imagePath string, cause error) (int64, error) {
	entry := &model.AnalysisLogEntry{
		Success: false,
		Message: errs.MessageForCode(errs.CodeOf(cause)),
	}
	if imagePath != "" {
		entry.ImagePath = &imagePath
	}

	id, err := r.store.Insert(ctx, entry)
	if err != nil {
		return 0, errs.Ensure(errs.ErrAnalysisLogStore, err)
	}
	return id, nil
}
