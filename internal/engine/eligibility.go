package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Validator confirms that a submission comes from a real, enrolled member of
// the claimed class and uses the method the session demands. Checks run in a
// fixed order and stop at the first failure so callers get a precise reason.
type Validator struct {
	dir Directory
	log *zap.Logger
}

// NewValidator creates a validator over the directory store.
func NewValidator(dir Directory, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{dir: dir, log: log}
}

// Identity resolves the submitting identity by NIM. A missing identity is a
// rejection, not an error.
func (v *Validator) Identity(ctx context.Context, nim string) (*Identity, *Outcome, error) {
	ident, err := v.dir.IdentityByNIM(ctx, nim)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup identity %q: %w", nim, err)
	}
	if ident == nil {
		out := rejectIdentityNotFound()
		return nil, &out, nil
	}
	return ident, nil, nil
}

// Validate runs the remaining eligibility checks against a resolved identity
// and session. The legacy class pointer on the identity is only a soft
// signal; membership is the single authority for class access.
func (v *Validator) Validate(ctx context.Context, ident *Identity, classID int64, method Method, sess Session) (*Outcome, error) {
	if ident.LegacyClassID != classID {
		v.log.Warn("legacy class pointer disagrees with claimed class",
			zap.String("nim", ident.NIM),
			zap.Int64("legacy_class_id", ident.LegacyClassID),
			zap.Int64("claimed_class_id", classID))
	}

	member, err := v.dir.IsMember(ctx, ident.ID, classID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		out := rejectNotAMember()
		return &out, nil
	}

	if sess.Method != method {
		out := rejectMethodMismatch(sess.Method)
		return &out, nil
	}
	return nil, nil
}
