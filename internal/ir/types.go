package ir

import (
	"errors"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxIdentityLength bounds identity strings in bytes.
const MaxIdentityLength = 256

// ErrInvalidIdentity is returned by Identity.Validate.
var ErrInvalidIdentity = errors.New("invalid identity")

// Identity is the enrolled subject a biometric attempt claims to be.
// Case-sensitive and immutable once enrolled.
type Identity string

// Validate checks that the identity is non-empty, at most MaxIdentityLength
// bytes, valid UTF-8 in Unicode Normalization Form C and free of control
// characters. Requiring NFC keeps the stored identity byte-identical to the
// form the audit hash covers.
func (id Identity) Validate() error {
	s := string(id)
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	if len(s) > MaxIdentityLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidIdentity, MaxIdentityLength)
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidIdentity)
	}
	if !norm.NFC.IsNormalString(s) {
		return fmt.Errorf("%w: not in Unicode normalization form C", ErrInvalidIdentity)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: contains control character %U", ErrInvalidIdentity, r)
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (id Identity) String() string {
	return string(id)
}

// FingerprintSample is a raw sample as delivered by a sensor driver.
type FingerprintSample []float64

// FingerprintTemplate is the stored reference for one enrolled fingerprint.
// One template per identity; re-enrollment overwrites.
type FingerprintTemplate []float64

// FaceEmbedding is a fixed-length vector produced by a face-recognition model.
// An identity may accumulate several embeddings.
type FaceEmbedding []float64

// FaceRecord is one enrolled (identity, embedding) pair.
// Seq is the insertion order and the tie-break for matching.
type FaceRecord struct {
	Seq       int64
	Identity  Identity
	Embedding FaceEmbedding
}

// IdentitySummary describes the enrollment status of one identity.
type IdentitySummary struct {
	Identity       Identity `json:"identity"`
	HasFingerprint bool     `json:"has_fingerprint"`
	FaceEmbeddings int      `json:"face_embeddings"`
}

// Eligible reports whether both factors are enrolled.
func (s IdentitySummary) Eligible() bool {
	return s.HasFingerprint && s.FaceEmbeddings > 0
}

// FactorResult is the per-factor outcome of a verification attempt.
type FactorResult string

const (
	FactorPass         FactorResult = "pass"
	FactorFail         FactorResult = "fail"
	FactorNotAttempted FactorResult = "not_attempted"
)

// Outcome is the overall result of a verification session.
type Outcome string

const (
	OutcomeSuccess   Outcome = "SUCCESS"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeAbandoned Outcome = "ABANDONED"
)

// Reason explains a non-successful outcome. Empty on success.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonUnknownIdentity      Reason = "UnknownIdentity"
	ReasonIncompleteEnrollment Reason = "IncompleteEnrollment"
	ReasonFingerprintMismatch  Reason = "FingerprintMismatch"
	ReasonFaceMismatch         Reason = "FaceMismatch"
	ReasonFaceTimeout          Reason = "FaceTimeout"
	ReasonAbandoned            Reason = "Abandoned"
)

// AuthAttempt is one immutable audit record of a verification session.
//
// Seq, PrevHash and Hash are assigned by the store when the record is
// appended. Timestamp is always UTC.
type AuthAttempt struct {
	Seq         int64        `json:"seq"`
	ID          string       `json:"id"`
	SessionID   string       `json:"session_id"`
	Identity    Identity     `json:"identity"`
	Timestamp   time.Time    `json:"timestamp"`
	Fingerprint FactorResult `json:"fingerprint"`
	Face        FactorResult `json:"face"`
	Outcome     Outcome      `json:"outcome"`
	Reason      Reason       `json:"reason,omitempty"`
	Frames      int64        `json:"frames"`
	PrevHash    string       `json:"prev_hash"`
	Hash        string       `json:"hash"`
}

// Succeeded reports whether the attempt authenticated the identity.
func (a AuthAttempt) Succeeded() bool {
	return a.Outcome == OutcomeSuccess
}
