package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func authURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth-url",
		Short: "Print the Gmail consent URL",
		Long:  `Print the Gmail consent URL. The state it carries is only known to this
process, so the server callback rejects it: copy the code parameter from the
redirect and pass it to "exchange".`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			fmt.Fprintln(cmd.OutOrStdout(), e.consent().ConsentURL())
			return nil
		},
	}
}

func exchangeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Exchange an authorization code and store the refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _ := cmd.Flags().GetString("code")

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			token, err := e.authenticator().Exchange(e.ctx, code)
			if err != nil {
				return err
			}
			if err := e.store.SetToken(e.ctx, token); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Refresh token stored.")
			return nil
		},
	}

	cmd.Flags().StringP("code", "c", "", "Authorization code from the consent redirect")
	cmd.MarkFlagRequired("code")
	return cmd
}
