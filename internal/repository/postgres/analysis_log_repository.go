package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"imageclassifier/internal/errs"
	"imageclassifier/internal/model"
)

type AnalysisLogRepository struct {
	db *DB
}

func NewAnalysisLogRepository(db *DB) *AnalysisLogRepository {
	return &AnalysisLogRepository{db: db}
}

func (r *AnalysisLogRepository) Insert(ctx context.Context, entry *model.AnalysisLogEntry) (int64, error) {
	q := `INSERT INTO ai_analysis_log (image_path, success, message, class, confidence, request_timestamp, response_timestamp)
		  VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	var id int64
	err := r.db.conn.QueryRowContext(ctx, q,
		entry.ImagePath, entry.Success, entry.Message, entry.Class, entry.Confidence,
		entry.RequestTimestamp, entry.ResponseTimestamp,
	).Scan(&id)
	if err != nil {
		return 0, errs.Wrap(errs.ErrAnalysisLogStore, fmt.Errorf("can't save analysis log: %w", err))
	}
	return id, nil
}

func (r *AnalysisLogRepository) ListRecent(ctx context.Context, limit int) ([]model.AnalysisLogEntry, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, image_path, success, message, class, confidence, request_timestamp, response_timestamp
		FROM ai_analysis_log ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errs.Wrap(errs.ErrAnalysisLogStore, fmt.Errorf("can't query analysis log: %w", err))
	}
	defer rows.Close()

	entries := []model.AnalysisLogEntry{}
	for rows.Next() {
		var (
			e                     model.AnalysisLogEntry
			message               sql.NullString
			imagePath             sql.NullString
			requestTS, responseTS sql.NullString
			class                 sql.NullInt64
			confidence            sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &imagePath, &e.Success, &message, &class, &confidence, &requestTS, &responseTS); err != nil {
			return nil, errs.Wrap(errs.ErrAnalysisLogStore, fmt.Errorf("can't scan analysis log: %w", err))
		}
		e.Message = message.String
		if imagePath.Valid {
			e.ImagePath = &imagePath.String
		}
		if requestTS.Valid {
			e.RequestTimestamp = &requestTS.String
		}
		if responseTS.Valid {
			e.ResponseTimestamp = &responseTS.String
		}
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
