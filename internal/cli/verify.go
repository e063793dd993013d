package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/biogate/internal/face"
	"github.com/roach88/biogate/internal/ir"
	"github.com/roach88/biogate/internal/session"
	"github.com/roach88/biogate/internal/verifier"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		sample sampleFlags
		frames []string
	)

	cmd := &cobra.Command{
		Use:   "verify <identity>",
		Short: "Run a fingerprint-then-face verification session",
		Long: `Run one verification session: the fingerprint sample is checked
first, then face frames are submitted in order until one matches, the
frame budget or timeout is exhausted, or the frames run out (the session
is then abandoned). Every session is recorded in the audit log.

Exit codes:
  0 - Authentication succeeded
  1 - Authentication failed or was abandoned
  2 - Command error (bad input, storage failure, etc.)`,
		Example:       `  biogate verify alice --sample 0.1,0.5,0.9 --frame f1.json --frame f2.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			s, err := sample.resolve(cmd.Context(), cmd)
			if err != nil {
				return f.Fail(ErrCodeInput, err)
			}
			images := make([]face.Image, 0, len(frames))
			for _, path := range frames {
				img, err := readImage(path)
				if err != nil {
					return f.Fail(ErrCodeInput, err)
				}
				images = append(images, img)
			}

			rt, err := openRuntime(rootOpts, cmd, f)
			if err != nil {
				return err
			}
			defer rt.Close()

			snap, err := runSession(cmd.Context(), rt.svc, ir.Identity(args[0]), s, face.NewFrameQueue(images...), f)
			if err != nil {
				return f.Fail(ErrCodeGeneric, err)
			}
			if err := f.Success(sessionResult{snap}); err != nil {
				return err
			}
			if snap.State != session.StateSuccess {
				return NewExitError(ExitFailure, fmt.Sprintf("authentication %s: %s", snap.State, snap.Reason))
			}
			return nil
		},
	}
	sample.bind(cmd)
	cmd.Flags().StringSliceVar(&frames, "frame", nil, "face frame file, repeatable, submitted in order")
	return cmd
}

// runSession drives one session to a terminal state. When the camera runs
// dry before the face step finishes the session is abandoned.
func runSession(ctx context.Context, svc *verifier.Service, id ir.Identity, sample ir.FingerprintSample, cam face.Camera, f *OutputFormatter) (session.Snapshot, error) {
	snap, err := svc.StartVerification(ctx, id)
	if err != nil || snap.State.Terminal() {
		return snap, err
	}
	f.VerboseLog("session %s started for %s", snap.Handle, id)

	snap, err = svc.SubmitFingerprint(ctx, snap.Handle, sample)
	if err != nil || snap.State.Terminal() {
		return snap, err
	}
	f.VerboseLog("fingerprint accepted")

	for snap.State == session.StateFacePending {
		img, err := cam.Frame(ctx)
		if errors.Is(err, io.EOF) {
			f.VerboseLog("no more frames after %d, abandoning", snap.Frames)
			return svc.Abandon(ctx, snap.Handle)
		}
		if err != nil {
			return snap, err
		}
		snap, err = svc.SubmitFaceFrame(ctx, snap.Handle, img)
		if err != nil {
			return snap, err
		}
		f.VerboseLog("frame %d: %s", snap.Frames, snap.State)
	}
	return snap, nil
}
