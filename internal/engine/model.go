// Package engine implements the attendance validation and recording core:
// session resolution, eligibility checks, the duplicate guard contract and
// the submission orchestrator.
package engine

import (
	"context"
	"time"
)

// Method is the required submission method of a session.
type Method string

const (
	MethodFace Method = "face"
	MethodQR   Method = "qr"
	MethodPIN  Method = "pin"
)

// ParseMethod validates a raw method string.
func ParseMethod(s string) (Method, bool) {
	switch Method(s) {
	case MethodFace, MethodQR, MethodPIN:
		return Method(s), true
	}
	return "", false
}

// Identity is a registered student.
type Identity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	NIM  string `json:"nim"`
	// LegacyClassID is the old direct class assignment. Memberships are
	// authoritative; this field is only a cross-check signal.
	LegacyClassID int64 `json:"class_id"`
	// Template is the stored biometric reference, nil until enrolled.
	Template []byte `json:"-"`
	Enrolled bool   `json:"face_enrolled"`
}

// ClassGroup is a named group of students.
type ClassGroup struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Session is a time-bounded attendance window for one class.
// Date is "2006-01-02"; Start and End are zero-padded "15:04" wall-clock
// times on that date, Start <= End. Soft-deleted sessions keep their row
// with Active=false.
type Session struct {
	ID      int64  `json:"id"`
	ClassID int64  `json:"class_id"`
	Date    string `json:"date"`
	Start   string `json:"start_time"`
	End     string `json:"end_time"`
	Method  Method `json:"method"`
	Active  bool   `json:"is_active"`
}

// Contains reports whether the session window covers the time-of-day of at,
// inclusive on both ends. Zero-padded "15:04" strings compare correctly
// lexicographically, which is also how the rows are matched in SQL.
func (s Session) Contains(at time.Time) bool {
	tod := at.Format("15:04")
	return s.Start <= tod && tod <= s.End
}

// Record is one accepted attendance claim. At most one exists per
// (StudentID, SessionID); the storage layer enforces that, not this package.
type Record struct {
	ID           int64     `json:"id"`
	StudentID    int64     `json:"student_id"`
	SessionID    int64     `json:"session_id"`
	Timestamp    time.Time `json:"timestamp"`
	Date         string    `json:"date"`
	Method       Method    `json:"method"`
	Confidence   float64   `json:"confidence_score"`
	EvidencePath string    `json:"evidence_path,omitempty"`
}

// Directory is the read side of the student/class/session store.
type Directory interface {
	// IdentityByNIM returns nil when no identity matches.
	IdentityByNIM(ctx context.Context, nim string) (*Identity, error)
	IsMember(ctx context.Context, identityID, classID int64) (bool, error)
	// ActiveSessions returns the Active=true sessions of a class on a
	// "2006-01-02" date.
	ActiveSessions(ctx context.Context, classID int64, date string) ([]Session, error)
}

// Matcher is the biometric scorer. Score is in [0,1] and is meaningful
// even when match is false.
type Matcher interface {
	Match(ctx context.Context, probe, template []byte) (match bool, score float64, err error)
}

// EvidenceStore persists raw submission proof and returns an opaque handle.
type EvidenceStore interface {
	Save(ctx context.Context, data []byte) (string, error)
}

// RecordStore persists attendance records. Insert is the authoritative
// duplicate guard: it must claim (student, session) atomically in the store
// and report claimed=false when another record already holds the pair.
type RecordStore interface {
	Exists(ctx context.Context, studentID, sessionID int64) (bool, error)
	Insert(ctx context.Context, rec Record) (stored Record, claimed bool, err error)
}
