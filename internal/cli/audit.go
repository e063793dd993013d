package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/biogate/internal/ir"
)

// NewAuditCommand creates the audit command group.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the authentication audit log",
	}
	cmd.AddCommand(newAuditListCommand(rootOpts))
	cmd.AddCommand(newAuditVerifyCommand(rootOpts))
	return cmd
}

func newAuditListCommand(rootOpts *RootOptions) *cobra.Command {
	var identity string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List recorded authentication attempts in order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			rt, err := openRuntime(rootOpts, cmd, f)
			if err != nil {
				return err
			}
			defer rt.Close()

			var attempts []ir.AuthAttempt
			if identity != "" {
				attempts, err = rt.svc.AuditFor(cmd.Context(), ir.Identity(identity))
			} else {
				attempts, err = rt.svc.GetAuditLog(cmd.Context())
			}
			if err != nil {
				return f.Fail(ErrCodeGeneric, err)
			}
			return f.Success(attemptList(attempts))
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "only attempts for this identity")
	return cmd
}

func newAuditVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the audit log hash chain",
		Long: `Recompute every record hash and check that each record links to its
predecessor.

Exit codes:
  0 - Chain intact
  1 - Chain broken (a record was modified, removed or reordered)
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			rt, err := openRuntime(rootOpts, cmd, f)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.svc.VerifyAuditChain(cmd.Context())
			if err != nil {
				return f.Fail(ErrCodeGeneric, err)
			}
			if err := f.Success(chainResult{report}); err != nil {
				return err
			}
			if !report.Valid {
				return NewExitError(ExitFailure, fmt.Sprintf("audit chain broken at seq %d", report.BrokenAt))
			}
			return nil
		},
	}
}
