package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"search-analytics-node/internal/authenticator"
	"search-analytics-node/internal/credential"
	"search-analytics-node/internal/envutil"
)

func newAuthCmd(opts *rootOptions) *cobra.Command {
	var (
		reset      bool
		expiration string
		licenseKey string
		noBrowser  bool
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to Search Console and store the credential in the workflow",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			var exp credential.Expiration
			if expiration != "" {
				parsed, err := credential.ParseExpiration(expiration)
				if err != nil {
					return err
				}
				exp = parsed
			}

			rt, err := startRuntime(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.close()

			res, err := rt.auth.Authenticate(cmd.Context(), authenticator.Options{
				Workflow:   opts.workflow,
				Reset:      reset,
				Expiration: exp,
				LicenseKey: licenseKey,
				NoBrowser:  noBrowser,
			})
			if err != nil {
				return err
			}

			stderr := cmd.ErrOrStderr()
			printWarnings(stderr, res.Warnings)
			if res.Reused {
				fmt.Fprintln(stderr, okStyle.Render(fmt.Sprintf("Workflow %q is already authenticated. Use --reset to authenticate again.", opts.workflow)))
				return nil
			}
			fmt.Fprintln(stderr, okStyle.Render(fmt.Sprintf("Authenticated workflow %q: %d verified properties.", opts.workflow, len(res.Credential.Properties))))
			if res.Credential.IsPro {
				fmt.Fprintln(stderr, dimStyle.Render("License key accepted, row limits lifted."))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&reset, "reset", false, "Discard the stored credential and start a new consent flow")
	f.StringVar(&expiration, "expiration", "", "Lifetime of a new credential: one_hour (default) or never")
	f.StringVar(&licenseKey, "license-key", "", "License key (defaults to LICENSE_KEY); re-checked on a reused credential")
	f.BoolVar(&noBrowser, "no-browser", envutil.Bool(os.Getenv, "GSC_NO_BROWSER", false), "Print the consent URL without opening a browser")

	return cmd
}
