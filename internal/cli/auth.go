package cli

import (
	"github.com/spf13/cobra"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate and refresh tokens",
	}
	cmd.AddCommand(newAuthLoginCmd(), newAuthRefreshCmd())
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange an API key for a token pair",
		Long:  "Exchange an API key for a token pair and persist both tokens. Without --key the configured RECOMMEND_API_KEY is used.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromContext(cmd.Context())
			if err := a.client.Login(cmd.Context(), key); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.format, map[string]any{
				"account_id":    a.client.AccountID(),
				"authenticated": true,
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "API key")
	return cmd
}

func newAuthRefreshCmd() *cobra.Command {
	var updateRefresh bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the auth token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromContext(cmd.Context())
			if err := a.client.RefreshTokens(cmd.Context(), updateRefresh); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.format, map[string]any{
				"account_id": a.client.AccountID(),
				"refreshed":  true,
			})
		},
	}
	cmd.Flags().BoolVar(&updateRefresh, "update-refresh-token", false, "Also rotate the refresh token")
	return cmd
}
