package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/natserract/recommend/pkg/recommend"
)

type tokenInfo struct {
	Kind       string    `json:"kind"`
	ExpireAt   time.Time `json:"expire_at"`
	CreatedAt  time.Time `json:"created_at"`
	Expired    bool      `json:"expired"`
	RefreshDue bool      `json:"refresh_due"`
	Subject    string    `json:"subject,omitempty"`
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect stored tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show stored token kinds and their expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromContext(cmd.Context())
			store := a.client.Tokens()
			if err := store.LoadAll(cmd.Context()); err != nil && !errors.Is(err, recommend.ErrConfiguration) {
				return err
			}
			return render(cmd.OutOrStdout(), a.format, describeTokens(cmd.Context(), store, time.Now()))
		},
	})
	return cmd
}

func describeTokens(ctx context.Context, store *recommend.Store, now time.Time) []tokenInfo {
	infos := []tokenInfo{}
	for _, kind := range store.Kinds() {
		tok, err := store.Get(ctx, kind)
		if err != nil {
			continue
		}
		info := tokenInfo{
			Kind:       string(kind),
			ExpireAt:   tok.ExpireAt.UTC(),
			CreatedAt:  tok.CreatedAt.UTC(),
			Expired:    tok.ExpiredAt(now),
			RefreshDue: tok.NeedsRefreshAt(now),
		}
		// Opaque tokens have no claims.
		if claims, err := tok.Claims(); err == nil {
			info.Subject, _ = claims.GetSubject()
		}
		infos = append(infos, info)
	}
	return infos
}
