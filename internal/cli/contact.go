package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/natserract/recommend/pkg/recommend"
)

func newContactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Work with contacts",
	}
	cmd.AddCommand(newContactSearchCmd())
	return cmd
}

func newContactSearchCmd() *cobra.Command {
	var q recommend.ContactSearch

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search contacts by email, customer id or list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(q.Emails) == 0 && len(q.CustomerIDs) == 0 && q.ListCode == "" {
				return fmt.Errorf("one of --email, --customer-id or --list-code is required")
			}
			a := fromContext(cmd.Context())
			resp, err := a.client.Contact.Search(cmd.Context(), q)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.format, resp.Body)
		},
	}

	cmd.Flags().StringSliceVar(&q.Emails, "email", nil, "Email address (repeatable)")
	cmd.Flags().StringSliceVar(&q.CustomerIDs, "customer-id", nil, "Customer id (repeatable)")
	cmd.Flags().StringVar(&q.ListCode, "list-code", "", "Contact list code")
	cmd.Flags().IntVar(&q.Skip, "skip", 0, "Results to skip")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "Maximum results")
	return cmd
}
