// Package directory stores the student, class, membership and session
// records the engine reads, plus the administrative operations around them.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"smartpresence/internal/engine"
)

var (
	// ErrNotFound marks lookups of ids that do not exist.
	ErrNotFound = errors.New("directory: not found")
	// ErrDuplicate marks unique-key collisions (nim, class name, membership).
	ErrDuplicate = errors.New("directory: already exists")
)

// Repository persists directory data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const identityColumns = `id, name, nim, class_id, face_template`

func scanIdentity(row interface{ Scan(...any) error }) (*engine.Identity, error) {
	var ident engine.Identity
	var template []byte
	if err := row.Scan(&ident.ID, &ident.Name, &ident.NIM, &ident.LegacyClassID, &template); err != nil {
		return nil, err
	}
	ident.Template = template
	ident.Enrolled = len(template) > 0
	return &ident, nil
}

// IdentityByNIM returns nil when the NIM is unknown.
func (r *Repository) IdentityByNIM(ctx context.Context, nim string) (*engine.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM students WHERE nim = $1`, nim)
	ident, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ident, err
}

// StudentByID returns nil when the id is unknown.
func (r *Repository) StudentByID(ctx context.Context, id int64) (*engine.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM students WHERE id = $1`, id)
	ident, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ident, err
}

// InsertStudent creates a student; a taken NIM yields ErrDuplicate.
func (r *Repository) InsertStudent(ctx context.Context, name, nim string, classID int64, template []byte) (engine.Identity, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (name, nim, class_id, face_template)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, name, nim, classID, template)
	ident := engine.Identity{Name: name, NIM: nim, LegacyClassID: classID, Template: template, Enrolled: len(template) > 0}
	if err := row.Scan(&ident.ID); err != nil {
		if isUniqueViolation(err) {
			return engine.Identity{}, ErrDuplicate
		}
		return engine.Identity{}, err
	}
	return ident, nil
}

// ListStudents returns students ordered by nim.
func (r *Repository) ListStudents(ctx context.Context, limit, offset int) ([]engine.Identity, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+identityColumns+` FROM students ORDER BY nim LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIdentities(rows)
}

func collectIdentities(rows *sql.Rows) ([]engine.Identity, error) {
	var res []engine.Identity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *ident)
	}
	return res, rows.Err()
}

// InsertClass creates a class; a taken name yields ErrDuplicate.
func (r *Repository) InsertClass(ctx context.Context, name string) (engine.ClassGroup, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO classes (name) VALUES ($1) RETURNING id`, name)
	cls := engine.ClassGroup{Name: name}
	if err := row.Scan(&cls.ID); err != nil {
		if isUniqueViolation(err) {
			return engine.ClassGroup{}, ErrDuplicate
		}
		return engine.ClassGroup{}, err
	}
	return cls, nil
}

// ClassByID returns nil when the id is unknown.
func (r *Repository) ClassByID(ctx context.Context, id int64) (*engine.ClassGroup, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name FROM classes WHERE id = $1`, id)
	var cls engine.ClassGroup
	if err := row.Scan(&cls.ID, &cls.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cls, nil
}

// ListClasses returns all classes.
func (r *Repository) ListClasses(ctx context.Context) ([]engine.ClassGroup, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM classes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []engine.ClassGroup
	for rows.Next() {
		var cls engine.ClassGroup
		if err := rows.Scan(&cls.ID, &cls.Name); err != nil {
			return nil, err
		}
		res = append(res, cls)
	}
	return res, rows.Err()
}

// AddMember links a student to a class. At most one membership may exist per
// pair; a second insert yields ErrDuplicate.
func (r *Repository) AddMember(ctx context.Context, classID, studentID int64) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO class_members (class_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (class_id, student_id) DO NOTHING
	`, classID, studentID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDuplicate
	}
	return nil
}

// IsMember reports whether the membership row exists. This relation, not the
// legacy class pointer on the student, decides class access.
func (r *Repository) IsMember(ctx context.Context, identityID, classID int64) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM class_members WHERE class_id = $1 AND student_id = $2
		)
	`, classID, identityID)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ClassStudents returns the membership roster of a class.
func (r *Repository) ClassStudents(ctx context.Context, classID int64) ([]engine.Identity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.nim, s.class_id, s.face_template
		FROM students s
		JOIN class_members m ON m.student_id = s.id
		WHERE m.class_id = $1
		ORDER BY s.nim
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIdentities(rows)
}

// InsertSession creates a session window.
func (r *Repository) InsertSession(ctx context.Context, sess engine.Session) (engine.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (class_id, date, start_time, end_time, method, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, sess.ClassID, sess.Date, sess.Start, sess.End, sess.Method, sess.Active)
	if err := row.Scan(&sess.ID); err != nil {
		return engine.Session{}, err
	}
	return sess, nil
}

// SessionByID returns nil when the id is unknown.
func (r *Repository) SessionByID(ctx context.Context, id int64) (*engine.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_id, date, start_time, end_time, method, is_active
		FROM sessions WHERE id = $1
	`, id)
	var sess engine.Session
	if err := row.Scan(&sess.ID, &sess.ClassID, &sess.Date, &sess.Start, &sess.End, &sess.Method, &sess.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	ClassID int64
	Date    string
	Active  *bool
}

// Sessions lists sessions matching the filter, newest date first.
func (r *Repository) Sessions(ctx context.Context, f SessionFilter) ([]engine.Session, error) {
	query := `SELECT id, class_id, date, start_time, end_time, method, is_active FROM sessions`
	args := []any{}
	clauses := []string{}
	if f.ClassID > 0 {
		args = append(args, f.ClassID)
		clauses = append(clauses, "class_id = $"+itoa(len(args)))
	}
	if f.Date != "" {
		args = append(args, f.Date)
		clauses = append(clauses, "date = $"+itoa(len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		clauses = append(clauses, "is_active = $"+itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinClauses(clauses, " AND ")
	}
	query += " ORDER BY date DESC, start_time, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []engine.Session
	for rows.Next() {
		var sess engine.Session
		if err := rows.Scan(&sess.ID, &sess.ClassID, &sess.Date, &sess.Start, &sess.End, &sess.Method, &sess.Active); err != nil {
			return nil, err
		}
		res = append(res, sess)
	}
	return res, rows.Err()
}

// ActiveSessions serves the engine's Directory contract.
func (r *Repository) ActiveSessions(ctx context.Context, classID int64, date string) ([]engine.Session, error) {
	active := true
	return r.Sessions(ctx, SessionFilter{ClassID: classID, Date: date, Active: &active})
}

// DeactivateSession soft-deletes: the row stays so attendance records keep a
// valid session to reference.
func (r *Repository) DeactivateSession(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountSessions counts every session ever scheduled for a class, active or
// not, which is the denominator of attendance percentages.
func (r *Repository) CountSessions(ctx context.Context, classID int64) (int, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE class_id = $1`, classID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
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
