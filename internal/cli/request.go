package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chordhq/chord/internal/api"
)

// newRequestCmd creates the 'request' command: one API call from the shell,
// paced through the same rate-limit coordination as programmatic use.
func newRequestCmd() *cobra.Command {
	var (
		data    string
		params  []string
		queries []string
	)

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Perform one API request",
		Long: `Perform a single API request against the configured base URL.

PATH may contain {name} placeholders filled from --param flags. The
placeholder template, not the substituted path, determines the rate
limit bucket, so repeated calls against different ids share one bucket
until the server says otherwise.

Examples:
  chord request GET /users/@me
  chord request GET "/channels/{channel_id}" --param channel_id=1234
  chord request POST "/channels/{channel_id}/messages" --param channel_id=1234 --data '{"content":"hi"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			route, err := buildRoute(args[0], args[1], params)
			if err != nil {
				return err
			}
			for _, q := range queries {
				name, value, ok := strings.Cut(q, "=")
				if !ok || name == "" {
					return fmt.Errorf("invalid --query %q, want name=value", q)
				}
				if route.Query == nil {
					route.Query = url.Values{}
				}
				route.Query.Add(name, value)
			}

			var payload any
			if data != "" {
				if err := json.Unmarshal([]byte(data), &payload); err != nil {
					return fmt.Errorf("--data is not valid JSON: %w", err)
				}
			}

			client, err := newClient()
			if err != nil {
				return err
			}

			result, err := client.Request(context.Background(), route, payload)
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Path parameter as name=value (repeatable)")
	cmd.Flags().StringArrayVarP(&queries, "query", "q", nil, "Query parameter as name=value (repeatable)")

	return cmd
}

// buildRoute turns the command arguments into a route, validating that
// every placeholder has a value.
func buildRoute(method, path string, params []string) (api.Route, error) {
	pairs := make([]string, 0, len(params)*2)
	for _, p := range params {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return api.Route{}, fmt.Errorf("invalid --param %q, want name=value", p)
		}
		pairs = append(pairs, name, value)
	}
	route := api.NewRoute(method, path, pairs...)

	for name := range route.Params {
		if !strings.Contains(path, "{"+name+"}") {
			return api.Route{}, fmt.Errorf("path has no placeholder for param %q", name)
		}
	}
	return route, nil
}

// printResult writes the response to stdout: pretty JSON for decoded
// bodies, raw text otherwise, nothing for empty responses.
func printResult(result any) error {
	switch v := result.(type) {
	case nil:
		return nil
	case string:
		fmt.Println(v)
		return nil
	default:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}
