package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/biogate/internal/ir"
)

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		sample    sampleFlags
		imagePath string
	)

	cmd := &cobra.Command{
		Use:   "register <identity>",
		Short: "Enroll both factors for a new identity",
		Long: `Enroll a fingerprint and a face for an identity that has nothing
enrolled yet. Both inputs are validated before anything is stored.`,
		Example:       `  biogate register alice --sample 0.1,0.5,0.9 --image alice.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			s, err := sample.resolve(cmd.Context(), cmd)
			if err != nil {
				return f.Fail(ErrCodeInput, err)
			}
			img, err := readImage(imagePath)
			if err != nil {
				return f.Fail(ErrCodeInput, err)
			}

			rt, err := openRuntime(rootOpts, cmd, f)
			if err != nil {
				return err
			}
			defer rt.Close()

			id := ir.Identity(args[0])
			if err := rt.svc.Register(cmd.Context(), id, s, img); err != nil {
				return f.Fail(ErrCodeGeneric, err)
			}
			return f.Success(registerResult{Identity: id})
		},
	}
	sample.bind(cmd)
	cmd.Flags().StringVar(&imagePath, "image", "", "face image file (required)")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}
