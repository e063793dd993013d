package cli

import (
	"github.com/spf13/cobra"
)

// NewIdentitiesCommand creates the identities command.
func NewIdentitiesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "identities",
		Short:         "List enrolled identities and their factors",
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

			ids, err := rt.svc.Identities(cmd.Context())
			if err != nil {
				return f.Fail(ErrCodeGeneric, err)
			}
			return f.Success(identityList(ids))
		},
	}
}
