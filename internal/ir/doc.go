// Package ir provides the canonical domain types for biogate.
//
// This package contains type definitions, canonical serialization and
// content hashing only. All other internal packages import ir; ir imports
// nothing internal, which keeps it the foundational layer.
//
// Key design constraints:
//   - Identities are case-sensitive and never normalized before storage
//   - Biometric vectors are []float64 and never appear in canonical JSON
//   - Audit records are hashed over canonical JSON (no floats, no null)
//   - All JSON tags use snake_case
package ir
