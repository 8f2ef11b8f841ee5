package sqlite

import (
	"context"
	"errors"
	"fmt"

	"imageclassifier/internal/errs"
	"imageclassifier/internal/model"
	"imageclassifier/internal/repository"
)

// ClassRepository implements repository.ClassRepository for SQLite.
type ClassRepository struct {
	db *DB
}

// NewClassRepository creates a new SQLite class repository.
func NewClassRepository(db *DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// Append adds a new class and returns it with the assigned id.
func (r *ClassRepository) Append(ctx context.Context, label string, embedding []float64) (*model.ClassRecord, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO class_label_embeddings (label, embeddings)
		VALUES (?, ?)
	`, label, repository.EncodeEmbedding(embedding))
	if err != nil {
		return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("failed to insert class: %w", err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("failed to get last insert id: %w", err))
	}

	stored := make([]float64, len(embedding))
	copy(stored, embedding)
	return &model.ClassRecord{ID: id, Label: label, Embedding: stored}, nil
}

// AppendBatch inserts many classes in a single transaction without any similarity check.
func (r *ClassRepository) AppendBatch(ctx context.Context, classes []model.ClassRecord) ([]int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO class_label_embeddings (label, embeddings)
		VALUES (?, ?)
	`)
	if err != nil {
		return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("failed to prepare statement: %w", err))
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(classes))
	for _, c := range classes {
		result, err := stmt.ExecContext(ctx, c.Label, repository.EncodeEmbedding(c.Embedding))
		if err != nil {
			return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("failed to insert class %q: %w", c.Label, err))
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("failed to get last insert id: %w", err))
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return ids, nil
}

// ListAll returns every class ordered by id.
func (r *ClassRepository) ListAll(ctx context.Context) ([]model.ClassRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return r.query(ctx, `SELECT id, label, embeddings FROM class_label_embeddings ORDER BY id`)
}

// FindOne returns exactly one class matching filter.
func (r *ClassRepository) FindOne(ctx context.Context, filter model.ClassFilter) (*model.ClassRecord, error) {
	if filter.IsEmpty() {
		return nil, errs.Wrap(errs.ErrClassStore, errors.New("class filter has no criteria"))
	}

	r.db.RLock()
	defer r.db.RUnlock()

	query := `SELECT id, label, embeddings FROM class_label_embeddings WHERE 1=1`
	args := []interface{}{}

	if filter.Label != nil {
		query += " AND label = ?"
		args = append(args, *filter.Label)
	}
	if filter.ID != nil {
		query += " AND id = ?"
		args = append(args, *filter.ID)
	}
	query += " ORDER BY id LIMIT 2"

	classes, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	switch len(classes) {
	case 0:
		return nil, errs.Wrapf(errs.ErrClassNotFound, "no class for %s", filter)
	case 1:
		return &classes[0], nil
	default:
		return nil, errs.Wrapf(errs.ErrAmbiguousClass, "multiple classes for %s", filter)
	}
}

func (r *ClassRepository) query(ctx context.Context, query string, args ...interface{}) ([]model.ClassRecord, error) {
	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("failed to query classes: %w", err))
	}
	defer rows.Close()

	classes := []model.ClassRecord{}
	for rows.Next() {
		var (
			c   model.ClassRecord
			raw string
		)
		if err := rows.Scan(&c.ID, &c.Label, &raw); err != nil {
			return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("failed to scan class: %w", err))
		}
		if c.Embedding, err = repository.DecodeEmbedding(raw); err != nil {
			return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("class %d: %w", c.ID, err))
		}
		classes = append(classes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("error iterating rows: %w", err))
	}

	return classes, nil
}
