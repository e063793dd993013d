// Package harness runs conformance scenarios against the verifier.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: alice_success
//	description: "Enrolled user passes both factors"
//	config:
//	  max_frames: 3
//	setup:
//	  - enroll: register
//	    identity: alice
//	    sample: [1, 2, 3]
//	    embedding: [0.1, 0.2, 0.3]
//	flow:
//	  - do: start
//	    identity: alice
//	  - do: fingerprint
//	    sample: [1, 2, 3]
//	  - do: face
//	    faces: [[0.1, 0.2, 0.4]]
//	    expect:
//	      state: SUCCESS
//	assertions:
//	  - type: audit_count
//	    count: 1
//	  - type: audit_entry
//	    seq: 1
//	    expect: { outcome: SUCCESS, face: pass }
//	  - type: chain_valid
//
// Flow steps act on the most recently started session. The step kinds are
// start, fingerprint, face (one frame per repeat, faces listing the
// embeddings detected in it; an empty list is a frame with no face),
// abandon, advance (moves the fake clock) and sweep.
//
// # Assertion Types
//
//   - audit_count: number of audit records, optionally for one identity
//   - audit_entry: fields of the record at seq (subset match)
//   - chain_valid: the audit hash chain verifies
//   - identity: enrollment summary of an identity (subset match)
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory store with a fake clock
// starting at testutil.Epoch and session handles session-1, session-2, ...
// so the trace is identical across runs and can be compared against
// golden files in testdata/golden.
package harness
