package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"smartpresence/internal/metrics"
)

// DefaultConfidenceFloor is the minimum matcher score accepted for face
// submissions. It is enforced on top of the matcher's own decision: a probe
// can match and still be rejected when the score lands below this floor.
const DefaultConfidenceFloor = 0.8

// SubmitRequest carries one inbound attendance submission.
type SubmitRequest struct {
	NIM     string
	ClassID int64
	Method  Method
	// Probe is the raw proof payload, required for face submissions and
	// retained as evidence for all methods when present.
	Probe []byte
}

// Recorder orchestrates a submission end to end: identity, open session,
// eligibility, duplicate fast path, biometric policy, evidence, and the
// authoritative atomic claim. It holds no mutable state and takes no locks;
// uniqueness is delegated entirely to the record store so concurrent
// submissions and multiple service instances stay safe.
type Recorder struct {
	records   RecordStore
	matcher   Matcher
	evidence  EvidenceStore
	resolver  *Resolver
	validator *Validator
	floor     float64
	log       *zap.Logger
}

// NewRecorder wires the engine. A non-positive floor falls back to
// DefaultConfidenceFloor.
func NewRecorder(dir Directory, records RecordStore, matcher Matcher, evidence EvidenceStore, floor float64, log *zap.Logger) *Recorder {
	if floor <= 0 {
		floor = DefaultConfidenceFloor
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{
		records:   records,
		matcher:   matcher,
		evidence:  evidence,
		resolver:  NewResolver(dir, log),
		validator: NewValidator(dir, log),
		floor:     floor,
		log:       log,
	}
}

// Resolver exposes session resolution for reporting code that needs to know
// whether a session was open at some instant.
func (r *Recorder) Resolver() *Resolver { return r.resolver }

// Submit decides whether one submission becomes a durable attendance record.
// now is the submission instant, passed in explicitly so the decision is
// reproducible under test. The returned error is reserved for system
// failures; every business rejection comes back as an Outcome.
//
// Evidence is written before the claim, mirroring the behavior this service
// replaced: the stored path travels inside the inserted row and records are
// never mutated afterwards. A submission that then loses the claim race
// leaves an orphaned evidence file, which is kept for audit and logged.
func (r *Recorder) Submit(ctx context.Context, req SubmitRequest, now time.Time) (Outcome, error) {
	out, err := r.submit(ctx, req, now)
	if err != nil {
		metrics.Submission("error", "")
		return Outcome{}, err
	}
	metrics.Submission(out.Status, string(out.Reason))
	return out, nil
}

func (r *Recorder) submit(ctx context.Context, req SubmitRequest, now time.Time) (Outcome, error) {
	ident, rej, err := r.validator.Identity(ctx, req.NIM)
	if err != nil {
		return Outcome{}, err
	}
	if rej != nil {
		return *rej, nil
	}

	sess, open, err := r.resolver.ResolveActive(ctx, req.ClassID, now)
	if err != nil {
		return Outcome{}, err
	}
	if !open {
		return rejectNoActiveSession(), nil
	}

	if rej, err = r.validator.Validate(ctx, ident, req.ClassID, req.Method, sess); err != nil {
		return Outcome{}, err
	}
	if rej != nil {
		return *rej, nil
	}

	// Fast path only: skips the matcher for an obvious duplicate. The
	// insert below is the authority.
	claimed, err := r.records.Exists(ctx, ident.ID, sess.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("duplicate pre-check: %w", err)
	}
	if claimed {
		return rejectAlreadyRecorded(), nil
	}

	confidence := 0.0
	if req.Method == MethodFace {
		if len(ident.Template) == 0 {
			return rejectNoBiometric(), nil
		}
		start := time.Now()
		match, score, err := r.matcher.Match(ctx, req.Probe, ident.Template)
		metrics.MatcherObserved(time.Since(start))
		if err != nil {
			return Outcome{}, fmt.Errorf("biometric match: %w", err)
		}
		if !match {
			return rejectFaceMismatch(score), nil
		}
		if score < r.floor {
			return rejectLowConfidence(score, r.floor), nil
		}
		confidence = score
	}

	evidencePath := ""
	if len(req.Probe) > 0 {
		evidencePath, err = r.evidence.Save(ctx, req.Probe)
		if err != nil {
			// Non-fatal: the claim still stands without evidence.
			metrics.EvidenceFailure()
			r.log.Error("evidence persist failed, continuing without",
				zap.String("nim", req.NIM),
				zap.Int64("session_id", sess.ID),
				zap.Error(err))
			evidencePath = ""
		}
	}

	rec := Record{
		StudentID:    ident.ID,
		SessionID:    sess.ID,
		Timestamp:    now,
		Date:         sess.Date,
		Method:       req.Method,
		Confidence:   confidence,
		EvidencePath: evidencePath,
	}
	stored, won, err := r.records.Insert(ctx, rec)
	if err != nil {
		return Outcome{}, fmt.Errorf("commit attendance: %w", err)
	}
	if !won {
		if evidencePath != "" {
			r.log.Info("duplicate lost the claim race, evidence retained for audit",
				zap.Int64("student_id", ident.ID),
				zap.Int64("session_id", sess.ID),
				zap.String("evidence", evidencePath))
		}
		return rejectAlreadyRecorded(), nil
	}

	r.log.Info("attendance committed",
		zap.Int64("record_id", stored.ID),
		zap.Int64("student_id", stored.StudentID),
		zap.Int64("session_id", stored.SessionID),
		zap.String("method", string(stored.Method)),
		zap.Float64("confidence", stored.Confidence))
	return success(stored), nil
}
