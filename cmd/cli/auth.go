package cli

import (
	"fmt"

	"mailcal/pkg/googleauth"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize Gmail and Calendar access and write the token file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		oauthCfg, err := googleauth.LoadConfig(cfg.GoogleCredentialsFile)
		if err != nil {
			return err
		}

		tok, err := googleauth.Authorize(cmd.Context(), oauthCfg, cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := googleauth.SaveToken(cfg.GoogleTokenFile, tok); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", cfg.GoogleTokenFile)
		return nil
	},
}
