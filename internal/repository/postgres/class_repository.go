package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"imageclassifier/internal/errs"
	"imageclassifier/internal/model"
)

// ClassRepository implements repository.ClassRepository on a float8[] column.
type ClassRepository struct {
	db *DB
}

func NewClassRepository(db *DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) Append(ctx context.Context, label string, embedding []float64) (*model.ClassRecord, error) {
	q := `INSERT INTO class_label_embeddings (label, embeddings) VALUES ($1, $2) RETURNING id`

	var id int64
	if err := r.db.conn.QueryRowContext(ctx, q, label, pq.Array(embedding)).Scan(&id); err != nil {
		return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("can't save class: %w", err))
	}

	stored := make([]float64, len(embedding))
	copy(stored, embedding)
	return &model.ClassRecord{ID: id, Label: label, Embedding: stored}, nil
}

// AppendBatch inserts classes in one transaction without any similarity check.
func (r *ClassRepository) AppendBatch(ctx context.Context, classes []model.ClassRecord) ([]int64, error) {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("can't begin transaction: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO class_label_embeddings (label, embeddings) VALUES ($1, $2) RETURNING id`)
	if err != nil {
		return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("can't prepare statement: %w", err))
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(classes))
	for _, c := range classes {
		var id int64
		if err := stmt.QueryRowContext(ctx, c.Label, pq.Array(c.Embedding)).Scan(&id); err != nil {
			return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("can't save class %q: %w", c.Label, err))
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("can't commit transaction: %w", err))
	}
	return ids, nil
}

func (r *ClassRepository) ListAll(ctx context.Context) ([]model.ClassRecord, error) {
	return r.query(ctx, `SELECT id, label, embeddings FROM class_label_embeddings ORDER BY id`)
}

func (r *ClassRepository) FindOne(ctx context.Context, filter model.ClassFilter) (*model.ClassRecord, error) {
	if filter.IsEmpty() {
		return nil, errs.Wrap(errs.ErrClassStore, errors.New("class filter has no criteria"))
	}

	q := `SELECT id, label, embeddings FROM class_label_embeddings WHERE 1=1`
	args := []any{}
	if filter.Label != nil {
		args = append(args, *filter.Label)
		q += fmt.Sprintf(" AND label = $%d", len(args))
	}
	if filter.ID != nil {
		args = append(args, *filter.ID)
		q += fmt.Sprintf(" AND id = $%d", len(args))
	}
	q += " ORDER BY id LIMIT 2"

	classes, err := r.query(ctx, q, args...)
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

func (r *ClassRepository) query(ctx context.Context, q string, args ...any) ([]model.ClassRecord, error) {
	rows, err := r.db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("can't query classes: %w", err))
	}
	defer rows.Close()

	classes := []model.ClassRecord{}
	for rows.Next() {
		var c model.ClassRecord
		if err := rows.Scan(&c.ID, &c.Label, pq.Array(&c.Embedding)); err != nil {
			return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("can't scan class: %w", err))
		}
		classes = append(classes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrClassStore, fmt.Errorf("error iterating rows: %w", err))
	}
	return classes, nil
}

// resolveLockKey identifies the advisory lock guarding class resolution.
const resolveLockKey int64 = 0x636c617373

// WithLock runs fn while holding a transaction-scoped advisory lock, so processes
// sharing this database resolve classes one at a time. The lock is released when
// the holding transaction ends, including on connection loss.
func (r *ClassRepository) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.ErrClassStore, fmt.Errorf("can't begin lock transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, resolveLockKey); err != nil {
		return errs.Wrap(errs.ErrClassStore, fmt.Errorf("can't take resolve lock: %w", err))
	}
	return fn(ctx)
}
