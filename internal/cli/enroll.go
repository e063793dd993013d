package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/biogate/internal/ir"
)

// NewEnrollCommand creates the enroll command group.
func NewEnrollCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Enroll a single biometric factor",
	}
	cmd.AddCommand(newEnrollFingerprintCommand(rootOpts))
	cmd.AddCommand(newEnrollFaceCommand(rootOpts))
	return cmd
}

func newEnrollFingerprintCommand(rootOpts *RootOptions) *cobra.Command {
	var sample sampleFlags

	cmd := &cobra.Command{
		Use:   "fingerprint <identity>",
		Short: "Store or replace the fingerprint template of an identity",
		Example: `  biogate enroll fingerprint alice --sample 0.1,0.5,0.9
  biogate enroll fingerprint alice --sensor-seed 42`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			s, err := sample.resolve(cmd.Context(), cmd)
			if err != nil {
				return f.Fail(ErrCodeInput, err)
			}

			rt, err := openRuntime(rootOpts, cmd, f)
			if err != nil {
				return err
			}
			defer rt.Close()

			id := ir.Identity(args[0])
			if err := rt.svc.EnrollFingerprint(cmd.Context(), id, s); err != nil {
				return f.Fail(ErrCodeGeneric, err)
			}
			return f.Success(enrollResult{Identity: id, Factor: "fingerprint"})
		},
	}
	sample.bind(cmd)
	return cmd
}

func newEnrollFaceCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		imagePath string
		embedding []float64
	)

	cmd := &cobra.Command{
		Use:   "face <identity>",
		Short: "Add a face embedding to an identity",
		Long: `Add a face embedding to an identity, either extracted from an image
(the first detected face is used) or given directly with --embedding.
Older embeddings beyond face.max_embeddings_per_identity are evicted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			if (imagePath == "") == (len(embedding) == 0) {
				return f.Fail(ErrCodeInput, errExactlyOneFace)
			}

			rt, err := openRuntime(rootOpts, cmd, f)
			if err != nil {
				return err
			}
			defer rt.Close()

			id := ir.Identity(args[0])
			if len(embedding) > 0 {
				err = rt.svc.EnrollFaceEmbedding(cmd.Context(), id, ir.FaceEmbedding(embedding))
			} else {
				img, readErr := readImage(imagePath)
				if readErr != nil {
					return f.Fail(ErrCodeInput, readErr)
				}
				err = rt.svc.EnrollFace(cmd.Context(), id, img)
			}
			if err != nil {
				return f.Fail(ErrCodeGeneric, err)
			}
			return f.Success(enrollResult{Identity: id, Factor: "face"})
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "face image file")
	cmd.Flags().Float64SliceVar(&embedding, "embedding", nil, "precomputed face embedding (comma separated)")
	return cmd
}
