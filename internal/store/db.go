package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// EnsureSchema creates the tables when they are missing. Idempotent startup
// bootstrap, not a migration system. The unique constraint on
// attendance_records (student_id, session_id) is load-bearing: it is the
// authority behind the duplicate guard and must never be dropped.
func (d *DB) EnsureSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS classes (
		id    BIGSERIAL PRIMARY KEY,
		name  TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS students (
		id            BIGSERIAL PRIMARY KEY,
		name          TEXT NOT NULL,
		nim           TEXT NOT NULL UNIQUE,
		class_id      BIGINT NOT NULL REFERENCES classes(id),
		face_template BYTEA,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS class_members (
		id         BIGSERIAL PRIMARY KEY,
		class_id   BIGINT NOT NULL REFERENCES classes(id),
		student_id BIGINT NOT NULL REFERENCES students(id),
		UNIQUE (class_id, student_id)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id         BIGSERIAL PRIMARY KEY,
		class_id   BIGINT NOT NULL REFERENCES classes(id),
		date       TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time   TEXT NOT NULL,
		method     TEXT NOT NULL,
		is_active  BOOLEAN NOT NULL DEFAULT TRUE,
		CHECK (start_time <= end_time)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_class_date ON sessions (class_id, date);

	CREATE TABLE IF NOT EXISTS attendance_records (
		id               BIGSERIAL PRIMARY KEY,
		student_id       BIGINT NOT NULL REFERENCES students(id),
		session_id       BIGINT NOT NULL REFERENCES sessions(id),
		occurred_at      TIMESTAMPTZ NOT NULL,
		date             TEXT NOT NULL,
		method           TEXT NOT NULL,
		confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		evidence_path    TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (student_id, session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance_records (student_id);
	`
	if _, err := d.Client.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
