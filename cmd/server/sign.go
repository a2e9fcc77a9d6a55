package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"ig-autoreply/internal/signature"
)

// newSignCmd prints the X-Hub-Signature-256 value for a payload, for replaying
// webhook deliveries against a local server with curl.
func newSignCmd() *cobra.Command {
	var secret, file string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Compute the X-Hub-Signature-256 header for a request body",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("IG_APP_SECRET")
			}
			if secret == "" {
				return errors.New("no secret: pass --secret or set IG_APP_SECRET")
			}

			var r io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return errors.Wrap(err, "open body")
				}
				defer f.Close()
				r = f
			}
			body, err := io.ReadAll(r)
			if err != nil {
				return errors.Wrap(err, "read body")
			}
			if len(body) == 0 {
				return errors.New("empty body")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signature.Sign(body, secret))
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "app secret (defaults to $IG_APP_SECRET)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "body file, - or empty for stdin")
	return cmd
}
