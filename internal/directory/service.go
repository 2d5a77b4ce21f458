package directory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"smartpresence/internal/engine"
)

// TemplateExtractor turns an enrollment photo into a biometric reference
// template. Implemented by the face client.
type TemplateExtractor interface {
	ExtractTemplate(ctx context.Context, image []byte) ([]byte, error)
}

// Store is the persistence surface the service needs; *Repository satisfies it.
type Store interface {
	InsertStudent(ctx context.Context, name, nim string, classID int64, template []byte) (engine.Identity, error)
	StudentByID(ctx context.Context, id int64) (*engine.Identity, error)
	ClassByID(ctx context.Context, id int64) (*engine.ClassGroup, error)
	AddMember(ctx context.Context, classID, studentID int64) error
}

// Service handles enrollment: template extraction plus student creation, and
// membership administration with existence checks.
type Service struct {
	store     Store
	extractor TemplateExtractor
	log       *zap.Logger
}

// NewService creates the directory service.
func NewService(store Store, extractor TemplateExtractor, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, extractor: extractor, log: log}
}

// EnrollStudent extracts a face template from the photo and creates the
// student with it. The photo must contain a detectable face; without a
// template the identity could never pass a face-method session.
func (s *Service) EnrollStudent(ctx context.Context, name, nim string, classID int64, photo []byte) (engine.Identity, error) {
	template, err := s.extractor.ExtractTemplate(ctx, photo)
	if err != nil {
		return engine.Identity{}, fmt.Errorf("extract template: %w", err)
	}

	ident, err := s.store.InsertStudent(ctx, name, nim, classID, template)
	if err != nil {
		return engine.Identity{}, err
	}
	s.log.Info("student enrolled",
		zap.Int64("student_id", ident.ID),
		zap.String("nim", nim),
		zap.Int64("class_id", classID))
	return ident, nil
}

// AddMember links a student to a class after verifying both exist.
func (s *Service) AddMember(ctx context.Context, classID, studentID int64) error {
	student, err := s.store.StudentByID(ctx, studentID)
	if err != nil {
		return fmt.Errorf("lookup student: %w", err)
	}
	if student == nil {
		return fmt.Errorf("student %d: %w", studentID, ErrNotFound)
	}
	cls, err := s.store.ClassByID(ctx, classID)
	if err != nil {
		return fmt.Errorf("lookup class: %w", err)
	}
	if cls == nil {
		return fmt.Errorf("class %d: %w", classID, ErrNotFound)
	}
	return s.store.AddMember(ctx, classID, studentID)
}
