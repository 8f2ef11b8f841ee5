package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"imageclassifier/internal/errs"
	"imageclassifier/internal/model"
)

// AnalysisLogRepository implements repository.AnalysisLogRepository for SQLite.
type AnalysisLogRepository struct {
	db *DB
}

// NewAnalysisLogRepository creates a new SQLite analysis log repository.
func NewAnalysisLogRepository(db *DB) *AnalysisLogRepository {
	return &AnalysisLogRepository{db: db}
}

// Insert appends one entry. Nil optional fields are stored as NULL.
func (r *AnalysisLogRepository) Insert(ctx context.Context, entry *model.AnalysisLogEntry) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO ai_analysis_log (image_path, success, message, class, confidence, request_timestamp, response_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ImagePath, entry.Success, entry.Message, entry.Class, entry.Confidence, entry.RequestTimestamp, entry.ResponseTimestamp)
	if err != nil {
		return 0, errs.Wrap(errs.ErrAnalysisLogStore, fmt.Errorf("failed to insert analysis log: %w", err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errs.Wrap(errs.ErrAnalysisLogStore, fmt.Errorf("failed to get last insert id: %w", err))
	}
	return id, nil
}

// ListRecent returns up to limit entries, newest first.
func (r *AnalysisLogRepository) ListRecent(ctx context.Context, limit int) ([]model.AnalysisLogEntry, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, image_path, success, message, class, confidence, request_timestamp, response_timestamp
		FROM ai_analysis_log ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, errs.Wrap(errs.ErrAnalysisLogStore, fmt.Errorf("failed to query analysis log: %w", err))
	}
	defer rows.Close()

	entries := []model.AnalysisLogEntry{}
	for rows.Next() {
		var (
			e                     model.AnalysisLogEntry
			imagePath, message    sql.NullString
			requestTS, responseTS sql.NullString
			class                 sql.NullInt64
			confidence            sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &imagePath, &e.Success, &message, &class, &confidence, &requestTS, &responseTS); err != nil {
			return nil, errs.Wrap(errs.ErrAnalysisLogStore, fmt.Errorf("failed to scan analysis log: %w", err))
		}
		e.Message = message.String
		e.ImagePath = nullString(imagePath)
		e.RequestTimestamp = nullString(requestTS)
		e.ResponseTimestamp = nullString(responseTS)
		if class.Valid {
			e.Class = &class.Int64
		}
		if confidence.Valid {
			e.Confidence = &confidence.Float64
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrAnalysisLogStore, fmt.Errorf("error iterating rows: %w", err))
	}
	return entries, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
