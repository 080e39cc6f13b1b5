package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/natserract/recommend/pkg/recommend"
)

func newAPICmd() *cobra.Command {
	var (
		data  string
		query []string
		raw   bool
	)

	cmd := &cobra.Command{
		Use:   "api <method> <path>",
		Short: "Raw API access",
		Long:  "Call any endpoint under the account URL. The token guard runs first, so an expiring token is refreshed before the call.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromContext(cmd.Context())

			req, err := buildRequest(args[0], args[1], data, query)
			if err != nil {
				return err
			}

			if raw {
				resp, err := a.client.CallRaw(cmd.Context(), req)
				if err != nil {
					return err
				}
				if resp.StatusCode >= 400 {
					fmt.Fprintf(cmd.ErrOrStderr(), "HTTP %d\n", resp.StatusCode)
				}
				return render(cmd.OutOrStdout(), a.format, resp.Body)
			}

			resp, err := a.client.Call(cmd.Context(), req)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.format, resp.Body)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "Query parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the response without classifying it")
	return cmd
}

func buildRequest(method, path, data string, query []string) (recommend.Request, error) {
	req := recommend.Request{
		Method: strings.ToUpper(method),
		Path:   strings.Trim(path, "/"),
	}
	if req.Path == "" {
		return req, fmt.Errorf("path is required")
	}

	if data != "" {
		if !json.Valid([]byte(data)) {
			return req, fmt.Errorf("--data is not valid JSON")
		}
		req.Body = json.RawMessage(data)
	}

	q, err := parseQuery(query)
	if err != nil {
		return req, err
	}
	req.Query = q
	return req, nil
}

// parseQuery turns key=value pairs into url.Values. Repeated keys accumulate.
func parseQuery(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	q := url.Values{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid query %q, expected key=value", p)
		}
		q.Add(k, v)
	}
	return q, nil
}
