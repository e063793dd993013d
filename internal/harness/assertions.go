package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/biogate/internal/audit"
	"github.com/roach88/biogate/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the audit log to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Audit    []AuditEvent // Audit log for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nAudit log:\n")
	for _, a := range e.Audit {
		fmt.Fprintf(&buf, "  [%d] %s fingerprint=%s face=%s %s %s frames=%d\n",
			a.Seq, a.Identity, a.Fingerprint, a.Face, a.Outcome, a.Reason, a.Frames)
	}
	return buf.String()
}

// AuditService is what assertions need beyond the recorded result.
type AuditService interface {
	VerifyAuditChain(ctx context.Context) (audit.ChainReport, error)
	Identities(ctx context.Context) ([]ir.IdentitySummary, error)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Service AuditService
	Ctx     context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertAuditCount:
			err = assertAuditCount(result.Audit, assertion)
		case AssertAuditEntry:
			err = assertAuditEntry(result.Audit, assertion)
		case AssertChainValid, AssertIdentity:
			if actx == nil || actx.Service == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a service", i, assertion.Type)
			} else if assertion.Type == AssertChainValid {
				err = assertChainValid(actx.Ctx, actx.Service, result.Audit)
			} else {
				err = assertIdentity(actx.Ctx, actx.Service, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

// assertAuditCount checks the number of audit records, optionally for a
// single identity.
func assertAuditCount(log []AuditEvent, assertion Assertion) error {
	count := 0
	for _, a := range log {
		if assertion.Identity == "" || a.Identity == assertion.Identity {
			count++
		}
	}
	if count == assertion.Count {
		return nil
	}

	scope := "audit log"
	if assertion.Identity != "" {
		scope = fmt.Sprintf("audit records for %s", assertion.Identity)
	}
	return &AssertionError{
		Type:     AssertAuditCount,
		Expected: fmt.Sprintf("%d %s", assertion.Count, scope),
		Actual:   fmt.Sprintf("%d", count),
		Audit:    log,
	}
}

// assertAuditEntry checks fields of the record at Seq (subset match).
func assertAuditEntry(log []AuditEvent, assertion Assertion) error {
	for _, a := range log {
		if a.Seq != assertion.Seq {
			continue
		}
		actual := map[string]interface{}{
			"identity":    a.Identity,
			"fingerprint": a.Fingerprint,
			"face":        a.Face,
			"outcome":     a.Outcome,
			"reason":      a.Reason,
			"frames":      a.Frames,
		}
		if mismatch := matchFields(actual, assertion.Expect); mismatch != "" {
			return &AssertionError{
				Type:     AssertAuditEntry,
				Expected: fmt.Sprintf("seq %d with %s", assertion.Seq, formatFields(assertion.Expect)),
				Actual:   mismatch,
				Audit:    log,
			}
		}
		return nil
	}

	return &AssertionError{
		Type:     AssertAuditEntry,
		Expected: fmt.Sprintf("record at seq %d", assertion.Seq),
		Actual:   "no such record",
		Audit:    log,
	}
}

// assertChainValid checks the persisted hash chain.
func assertChainValid(ctx context.Context, svc AuditService, log []AuditEvent) error {
	report, err := svc.VerifyAuditChain(ctx)
	if err != nil {
		return fmt.Errorf("chain_valid: %w", err)
	}
	if report.Valid {
		return nil
	}
	return &AssertionError{
		Type:     AssertChainValid,
		Expected: "intact audit chain",
		Actual:   fmt.Sprintf("broken at seq %d: %s", report.BrokenAt, report.Problem),
		Audit:    log,
	}
}

// assertIdentity checks an enrollment summary (subset match). An identity
// with nothing enrolled has a zero summary.
func assertIdentity(ctx context.Context, svc AuditService, assertion Assertion) error {
	ids, err := svc.Identities(ctx)
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}

	summary := ir.IdentitySummary{Identity: ir.Identity(assertion.Identity)}
	for _, s := range ids {
		if s.Identity == summary.Identity {
			summary = s
			break
		}
	}

	actual := map[string]interface{}{
		"has_fingerprint": summary.HasFingerprint,
		"face_embeddings": summary.FaceEmbeddings,
		"eligible":        summary.Eligible(),
	}
	if mismatch := matchFields(actual, assertion.Expect); mismatch != "" {
		return &AssertionError{
			Type:     AssertIdentity,
			Expected: fmt.Sprintf("%s with %s", assertion.Identity, formatFields(assertion.Expect)),
			Actual:   mismatch,
		}
	}
	return nil
}

// matchFields checks that actual contains every expected field (subset
// match) and describes the first mismatch, or returns "".
func matchFields(actual, expected map[string]interface{}) string {
	for _, key := range sortedKeys(expected) {
		got, ok := actual[key]
		if !ok {
			return fmt.Sprintf("unknown field %q", key)
		}
		if !valuesEqual(got, expected[key]) {
			return fmt.Sprintf("%s = %v", key, got)
		}
	}
	return ""
}

// valuesEqual compares a recorded value with a YAML value. YAML integers
// decode as int, recorded ones may be int64; scalars compare by their
// printed form.
func valuesEqual(actual, expected interface{}) bool {
	if expected == nil {
		return actual == nil || actual == ""
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

func formatFields(m map[string]interface{}) string {
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
