// Package postgres stores classes, the analysis log and rate-limit windows in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps a pooled PostgreSQL connection.
type DB struct {
	conn *sql.DB
}

// New opens dsn, verifies the connection and creates missing tables.
func New(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("can't open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("can't connect to database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS class_label_embeddings (
		id BIGSERIAL PRIMARY KEY,
		embeddings DOUBLE PRECISION[] NOT NULL,
		label TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ai_analysis_log (
		id BIGSERIAL PRIMARY KEY,
		image_path TEXT,
		success BOOLEAN NOT NULL,
		message TEXT,
		class BIGINT,
		confidence DOUBLE PRECISION,
		request_timestamp TEXT,
		response_timestamp TEXT
	);

	CREATE TABLE IF NOT EXISTS rate_limit (
		key TEXT PRIMARY KEY,
		count BIGINT,
		expiry BIGINT
	);

	CREATE INDEX IF NOT EXISTS idx_class_label_embeddings_label ON class_label_embeddings(label);
	`
	_, err := db.conn.ExecContext(ctx, schema)
	return err
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying pool.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
