package engine

import "fmt"

// Reason identifies why a submission was rejected.
type Reason string

const (
	ReasonIdentityNotFound    Reason = "identity_not_found"
	ReasonNotAMember          Reason = "not_a_member"
	ReasonNoActiveSession     Reason = "no_active_session"
	ReasonMethodMismatch      Reason = "method_mismatch"
	ReasonNoBiometricEnrolled Reason = "no_biometric_enrolled"
	ReasonFaceMismatch        Reason = "face_mismatch"
	ReasonLowConfidence       Reason = "low_confidence"
	ReasonAlreadyRecorded     Reason = "already_recorded"
)

const (
	// StatusSuccess and StatusRejected tag the two terminal outcomes.
	StatusSuccess  = "success"
	StatusRejected = "rejected"
)

// Outcome is the terminal result of one submission. Rejections are expected
// business outcomes, not errors; system failures travel separately as Go
// errors so callers can tell "invalid" apart from "failed to process".
type Outcome struct {
	Status  string  `json:"status"`
	Reason  Reason  `json:"reason,omitempty"`
	Message string  `json:"message"`
	Score   float64 `json:"score,omitempty"`
	Record  *Record `json:"data,omitempty"`
}

// Rejected reports whether the outcome is a rejection.
func (o Outcome) Rejected() bool { return o.Status == StatusRejected }

func success(rec Record) Outcome {
	return Outcome{
		Status:  StatusSuccess,
		Message: "attendance recorded",
		Record:  &rec,
	}
}

func reject(reason Reason, msg string) Outcome {
	return Outcome{Status: StatusRejected, Reason: reason, Message: msg}
}

func rejectScored(reason Reason, score float64, msg string) Outcome {
	return Outcome{Status: StatusRejected, Reason: reason, Score: score, Message: msg}
}

func rejectIdentityNotFound() Outcome {
	return reject(ReasonIdentityNotFound, "student not found")
}

func rejectNotAMember() Outcome {
	return reject(ReasonNotAMember, "student is not a member of this class")
}

func rejectNoActiveSession() Outcome {
	return reject(ReasonNoActiveSession, "no attendance session is open right now")
}

func rejectMethodMismatch(expected Method) Outcome {
	return reject(ReasonMethodMismatch, fmt.Sprintf("wrong method: this session requires %q", expected))
}

func rejectNoBiometric() Outcome {
	return reject(ReasonNoBiometricEnrolled, "no face reference enrolled for this student")
}

func rejectFaceMismatch(score float64) Outcome {
	return rejectScored(ReasonFaceMismatch, score, fmt.Sprintf("face does not match (score %.2f)", score))
}

func rejectLowConfidence(score, threshold float64) Outcome {
	return rejectScored(ReasonLowConfidence, score,
		fmt.Sprintf("match confidence %.2f below the %.2f floor, retry with a clearer photo", score, threshold))
}

func rejectAlreadyRecorded() Outcome {
	return reject(ReasonAlreadyRecorded, "attendance already recorded for this session")
}
