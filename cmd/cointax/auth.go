package main

import (
	"fmt"
	"os"

	"github.com/Veraticus/cointax/internal/cli"
	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/config"
	"github.com/Veraticus/cointax/internal/sheets"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with external services",
	}

	cmd.AddCommand(authSheetsCmd())

	return cmd
}

func authSheetsCmd() *cobra.Command {
	var callbackAddr string

	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Authorize Google Sheets export with OAuth2",
		Long: `Opens a browser consent flow and stores the resulting token so reports can
be exported with 'cointax report --export sheets'. Requires an OAuth2 client
ID and secret (sheets.client_id / sheets.client_secret or
GOOGLE_SHEETS_CLIENT_ID / GOOGLE_SHEETS_CLIENT_SECRET).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clientID := viper.GetString("sheets.client_id")
			if clientID == "" {
				clientID = os.Getenv("GOOGLE_SHEETS_CLIENT_ID")
			}
			clientSecret := viper.GetString("sheets.client_secret")
			if clientSecret == "" {
				clientSecret = os.Getenv("GOOGLE_SHEETS_CLIENT_SECRET")
			}
			if clientID == "" || clientSecret == "" {
				return common.NewUserError("OAuth2 client ID and secret are required", common.ErrMissingConfig)
			}

			tokenFile := config.SheetsTokenFile()
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Complete the authorization in your browser..."))

			if _, err := sheets.AuthenticateOAuth2Interactive(cmd.Context(), sheets.OAuth2Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				TokenFile:    tokenFile,
				CallbackAddr: callbackAddr,
			}); err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Token saved to "+tokenFile))
			return nil
		},
	}

	cmd.Flags().StringVar(&callbackAddr, "callback-addr", sheets.DefaultCallbackAddr, "local address for the OAuth2 redirect")

	return cmd
}
