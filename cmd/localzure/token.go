package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localzure/localzure/pkg/oauth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Work with emulator access tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue an access token without a running server",
	Long: `Issue a client_credentials access token from a one-off issuer.

The token is signed by a keypair generated for this invocation only; it is
useful for inspecting claim shapes, not for calling a running emulator,
whose issuer holds a different key.

Examples:
  # Token for the default storage audience
  localzure token issue

  # Token for Key Vault
  localzure token issue --scope https://vault.azure.net/.default`,
	RunE: runTokenIssue,
}

func init() {
	tokenIssueCmd.Flags().String("scope", "", "Requested scope")
	tokenIssueCmd.Flags().String("resource", "", "Requested resource (legacy v1 style)")

	tokenCmd.AddCommand(tokenIssueCmd)
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg)

	issuer, err := oauth.NewIssuer(oauth.IssuerConfig{
		Issuer:        cfg.OAuth.Issuer,
		TokenLifetime: cfg.OAuth.TokenLifetime.Std(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token authority: %w", err)
	}

	scope, _ := cmd.Flags().GetString("scope")
	resource, _ := cmd.Flags().GetString("resource")

	resp, err := issuer.IssueToken(oauth.TokenRequest{
		GrantType: "client_credentials",
		Scope:     scope,
		Resource:  resource,
	})
	if err != nil {
		return err
	}

	fmt.Println(resp.AccessToken)
	return nil
}
