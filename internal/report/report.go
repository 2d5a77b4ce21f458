// Package report aggregates attendance into per-class and per-student
// summaries. Sessions ever scheduled for a class are the denominator;
// accepted records are the numerator.
package report

import (
	"context"
	"fmt"
	"math"

	"smartpresence/internal/directory"
	"smartpresence/internal/engine"
)

// Directory is the roster/session surface needed for reporting;
// *directory.Repository satisfies it.
type Directory interface {
	ClassByID(ctx context.Context, id int64) (*engine.ClassGroup, error)
	StudentByID(ctx context.Context, id int64) (*engine.Identity, error)
	ClassStudents(ctx context.Context, classID int64) ([]engine.Identity, error)
	CountSessions(ctx context.Context, classID int64) (int, error)
}

// Attendance is the record-count surface; *attendance.Repository satisfies it.
type Attendance interface {
	CountForStudent(ctx context.Context, studentID int64) (int, error)
}

// StudentSummary is one student's attendance standing.
type StudentSummary struct {
	StudentID     int64   `json:"student_id"`
	Name          string  `json:"name"`
	NIM           string  `json:"nim"`
	TotalSessions int     `json:"total_sessions"`
	TotalPresent  int     `json:"total_present"`
	TotalAbsent   int     `json:"total_absent"`
	Percentage    float64 `json:"attendance_percentage"`
}

// ClassSummary is the roster-wide report of one class.
type ClassSummary struct {
	ClassID       int64            `json:"class_id"`
	ClassName     string           `json:"class_name"`
	TotalSessions int              `json:"total_sessions"`
	Students      []StudentSummary `json:"students"`
}

// Service computes summaries.
type Service struct {
	dir Directory
	att Attendance
}

// NewService creates the reporting service.
func NewService(dir Directory, att Attendance) *Service {
	return &Service{dir: dir, att: att}
}

// Class builds the summary for every member of a class.
func (s *Service) Class(ctx context.Context, classID int64) (*ClassSummary, error) {
	cls, err := s.dir.ClassByID(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("lookup class: %w", err)
	}
	if cls == nil {
		return nil, fmt.Errorf("class %d: %w", classID, directory.ErrNotFound)
	}

	total, err := s.dir.CountSessions(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	roster, err := s.dir.ClassStudents(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	summary := &ClassSummary{ClassID: classID, ClassName: cls.Name, TotalSessions: total}
	for _, student := range roster {
		st, err := s.summarize(ctx, student, total)
		if err != nil {
			return nil, err
		}
		summary.Students = append(summary.Students, st)
	}
	return summary, nil
}

// Student builds one student's summary against their legacy home class.
func (s *Service) Student(ctx context.Context, studentID int64) (*StudentSummary, error) {
	student, err := s.dir.StudentByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("lookup student: %w", err)
	}
	if student == nil {
		return nil, fmt.Errorf("student %d: %w", studentID, directory.ErrNotFound)
	}

	total := 0
	if student.LegacyClassID > 0 {
		if total, err = s.dir.CountSessions(ctx, student.LegacyClassID); err != nil {
			return nil, fmt.Errorf("count sessions: %w", err)
		}
	}
	summary, err := s.summarize(ctx, *student, total)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Service) summarize(ctx context.Context, student engine.Identity, totalSessions int) (StudentSummary, error) {
	present, err := s.att.CountForStudent(ctx, student.ID)
	if err != nil {
		return StudentSummary{}, fmt.Errorf("count attendance for %d: %w", student.ID, err)
	}
	absent := totalSessions - present
	if absent < 0 {
		absent = 0
	}
	pct := 0.0
	if totalSessions > 0 {
		pct = math.Round(float64(present)/float64(totalSessions)*100*100) / 100
	}
	return StudentSummary{
		StudentID:     student.ID,
		Name:          student.Name,
		NIM:           student.NIM,
		TotalSessions: totalSessions,
		TotalPresent:  present,
		TotalAbsent:   absent,
		Percentage:    pct,
	}, nil
}
