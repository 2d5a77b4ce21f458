// Package attendance persists attendance records in Postgres and implements
// the engine's RecordStore, including the atomic duplicate claim.
package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"smartpresence/internal/engine"
)

// Repository stores attendance records.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Exists is the duplicate fast path. It may race with concurrent inserts;
// Insert is the authority.
func (r *Repository) Exists(ctx context.Context, studentID, sessionID int64) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance_records
			WHERE student_id = $1 AND session_id = $2
		)
	`, studentID, sessionID)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Insert claims (student_id, session_id) atomically. The unique constraint
// is the single source of truth: when another record already holds the pair
// the insert affects no rows and claimed=false comes back instead of an
// error, regardless of how the two submissions interleaved.
func (r *Repository) Insert(ctx context.Context, rec engine.Record) (engine.Record, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records
			(student_id, session_id, occurred_at, date, method, confidence_score, evidence_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (student_id, session_id) DO NOTHING
		RETURNING id
	`, rec.StudentID, rec.SessionID, rec.Timestamp, rec.Date, rec.Method, rec.Confidence, rec.EvidencePath)
	if err := row.Scan(&rec.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return engine.Record{}, false, nil
		}
		return engine.Record{}, false, err
	}
	return rec, true, nil
}

// isUniqueViolation matches Postgres error 23505. ON CONFLICT already
// swallows the duplicate-key case, but the constraint can still surface
// through a concurrent transaction on some isolation setups.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// List returns records with basic filters. classID filters through the
// session the record belongs to.
func (r *Repository) List(ctx context.Context, studentID, classID int64, limit, offset int) ([]engine.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := `
		SELECT a.id, a.student_id, a.session_id, a.occurred_at, a.date, a.method, a.confidence_score, a.evidence_path
		FROM attendance_records a`
	args := []any{}
	clauses := []string{}
	if classID > 0 {
		query += " JOIN sessions s ON s.id = a.session_id"
		clauses = append(clauses, "s.class_id = $"+itoa(len(args)+1))
		args = append(args, classID)
	}
	if studentID > 0 {
		clauses = append(clauses, "a.student_id = $"+itoa(len(args)+1))
		args = append(args, studentID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinClauses(clauses, " AND ")
	}
	query += " ORDER BY a.occurred_at DESC LIMIT $" + itoa(len(args)+1) + " OFFSET $" + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []engine.Record
	for rows.Next() {
		var rec engine.Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.SessionID, &rec.Timestamp, &rec.Date, &rec.Method, &rec.Confidence, &rec.EvidencePath); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// Get returns a single record by id, nil when absent.
func (r *Repository) Get(ctx context.Context, id int64) (*engine.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, session_id, occurred_at, date, method, confidence_score, evidence_path
		FROM attendance_records WHERE id = $1
	`, id)
	var rec engine.Record
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.SessionID, &rec.Timestamp, &rec.Date, &rec.Method, &rec.Confidence, &rec.EvidencePath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// CountForStudent counts a student's accepted records, used by reporting.
func (r *Repository) CountForStudent(ctx context.Context, studentID int64) (int, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance_records WHERE student_id = $1`, studentID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func itoa(i int) string { return fmt.Sprintf("%d", i) }

func joinClauses(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for i := 1; i < len(parts); i++ {
		out += sep + parts[i]
	}
	return out
}
