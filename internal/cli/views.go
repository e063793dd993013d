package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/roach88/biogate/internal/audit"
	"github.com/roach88/biogate/internal/face"
	"github.com/roach88/biogate/internal/ir"
	"github.com/roach88/biogate/internal/session"
)

// Result types below render as text through String and as JSON through
// their fields.

type enrollResult struct {
	Identity ir.Identity `json:"identity"`
	Factor   string      `json:"factor"`
}

func (r enrollResult) String() string {
	return fmt.Sprintf("Enrolled %s for %s", r.Factor, r.Identity)
}

type registerResult struct {
	Identity ir.Identity `json:"identity"`
}

func (r registerResult) String() string {
	return fmt.Sprintf("Registered %s (fingerprint and face)", r.Identity)
}

type sessionResult struct {
	session.Snapshot
}

func (r sessionResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session:     %s\n", r.Handle)
	fmt.Fprintf(&b, "Identity:    %s\n", r.Identity)
	fmt.Fprintf(&b, "State:       %s\n", r.State)
	if r.Reason != ir.ReasonNone {
		fmt.Fprintf(&b, "Reason:      %s\n", r.Reason)
	}
	fmt.Fprintf(&b, "Fingerprint: %s\n", r.Fingerprint)
	fmt.Fprintf(&b, "Face:        %s\n", r.Face)
	fmt.Fprintf(&b, "Frames:      %d/%d", r.Frames, r.MaxFrames)
	return b.String()
}

type identityList []ir.IdentitySummary

func (l identityList) String() string {
	if len(l) == 0 {
		return "No identities enrolled."
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tFINGERPRINT\tFACES\tELIGIBLE")
	for _, s := range l {
		fmt.Fprintf(w, "%s\t%t\t%d\t%t\n", s.Identity, s.HasFingerprint, s.FaceEmbeddings, s.Eligible())
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

type attemptList []ir.AuthAttempt

func (l attemptList) String() string {
	if len(l) == 0 {
		return "No authentication attempts recorded."
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTIME\tIDENTITY\tFINGERPRINT\tFACE\tOUTCOME\tREASON\tFRAMES")
	for _, a := range l {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			a.Seq, a.Timestamp.Format(time.RFC3339), a.Identity,
			a.Fingerprint, a.Face, a.Outcome, a.Reason, a.Frames)
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

type chainResult struct {
	audit.ChainReport
}

func (r chainResult) String() string {
	if r.Valid {
		return fmt.Sprintf("Audit chain valid: %d records, head %s", r.Records, r.Head)
	}
	return fmt.Sprintf("Audit chain BROKEN at seq %d: %s", r.BrokenAt, r.Problem)
}

// readImage reads a face image file.
func readImage(path string) (face.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return face.Image(data), nil
}

// readSampleFile reads a fingerprint sample stored as a JSON array.
func readSampleFile(path string) (ir.FingerprintSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	var sample ir.FingerprintSample
	if err := json.Unmarshal(data, &sample); err != nil {
		return nil, fmt.Errorf("decode sample %s: %w", path, err)
	}
	return sample, nil
}
