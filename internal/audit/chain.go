package audit

import (
	"context"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/biogate/internal/ir"
)

// ChainReport is the result of VerifyChain.
type ChainReport struct {
	Records int    `json:"records"`
	Valid   bool   `json:"valid"`
	Head    string `json:"head"`

	// BrokenAt is the seq of the first bad record; zero when Valid.
	BrokenAt int64  `json:"broken_at,omitempty"`
	Problem  string `json:"problem,omitempty"`
}

// VerifyChain walks the log from the genesis hash and checks that seqs are
// contiguous, that each record links to its predecessor and that each stored
// hash matches the recomputed one. Timestamps must not decrease, and
// identities must be stored in NFC, the form the hash covers.
//
// A broken chain is reported in ChainReport, not as an error; errors mean
// the log could not be read.
func (l *Log) VerifyChain(ctx context.Context) (ChainReport, error) {
	attempts, err := l.ReadAll(ctx)
	if err != nil {
		return ChainReport{}, err
	}
	report := CheckChain(attempts)
	if !report.Valid {
		l.logger.Warn("audit chain broken",
			"broken_at", report.BrokenAt,
			"problem", report.Problem)
	}
	return report, nil
}

// CheckChain verifies a complete, ordered sequence of records.
func CheckChain(attempts []ir.AuthAttempt) ChainReport {
	report := ChainReport{Records: len(attempts), Head: ir.GenesisHash}

	prev := ir.GenesisHash
	for i, a := range attempts {
		want := int64(i + 1)
		if a.Seq != want {
			return broken(report, want, fmt.Sprintf("expected seq %d, found %d", want, a.Seq))
		}
		if a.PrevHash != prev {
			return broken(report, a.Seq, "prev_hash does not link to the preceding record")
		}
		hash, err := ir.AttemptHash(a)
		if err != nil {
			return broken(report, a.Seq, err.Error())
		}
		if hash != a.Hash {
			return broken(report, a.Seq, "record hash does not match its contents")
		}
		if !norm.NFC.IsNormalString(string(a.Identity)) {
			return broken(report, a.Seq, "identity is not in Unicode normalization form C")
		}
		if i > 0 && a.Timestamp.Before(attempts[i-1].Timestamp) {
			return broken(report, a.Seq, "timestamp precedes the preceding record")
		}
		prev = a.Hash
	}

	report.Valid = true
	report.Head = prev
	return report
}

func broken(r ChainReport, seq int64, problem string) ChainReport {
	r.Valid = false
	r.BrokenAt = seq
	r.Problem = problem
	return r
}
