package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainAttempt     = "biogate/attempt/v1"
	DomainFingerprint = "biogate/fingerprint/v1"
)

// GenesisHash is the PrevHash of the first audit record.
var GenesisHash = strings.Repeat("0", sha256.Size*2)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return h.Sum(nil)
}

// attemptObject is the hashed view of an attempt. Hash itself is excluded.
func attemptObject(a AuthAttempt) map[string]any {
	return map[string]any{
		"seq":         a.Seq,
		"id":          a.ID,
		"session_id":  a.SessionID,
		"identity":    a.Identity,
		"timestamp":   a.Timestamp,
		"fingerprint": a.Fingerprint,
		"face":        a.Face,
		"outcome":     a.Outcome,
		"reason":      a.Reason,
		"frames":      a.Frames,
		"prev_hash":   a.PrevHash,
	}
}

// CanonicalAttempt returns the canonical JSON of an attempt without its Hash.
func CanonicalAttempt(a AuthAttempt) ([]byte, error) {
	data, err := MarshalCanonical(attemptObject(a))
	if err != nil {
		return nil, fmt.Errorf("canonical attempt: %w", err)
	}
	return data, nil
}

// AttemptHash computes the chained hash of an audit record.
// PrevHash must already be set; changing any field, including the link to
// the previous record, changes the hash.
func AttemptHash(a AuthAttempt) (string, error) {
	data, err := CanonicalAttempt(a)
	if err != nil {
		return "", fmt.Errorf("AttemptHash: %w", err)
	}
	return hex.EncodeToString(hashWithDomain(DomainAttempt, data)), nil
}

// TemplateDigest hashes an encoded fingerprint template for exact matching.
func TemplateDigest(encoded []byte) []byte {
	return hashWithDomain(DomainFingerprint, encoded)
}
