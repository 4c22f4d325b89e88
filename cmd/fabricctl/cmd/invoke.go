package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	fabricbridge "github.com/opengovern/fabric-bridge"
)

type invokeOutput struct {
	StatusCode int               `json:"status_code"`
	Body       any               `json:"body"`
	Headers    map[string]string `json:"headers,omitempty"`
}

func newInvokeCmd(a *app) *cobra.Command {
	var (
		method   string
		data     string
		audience string
		headers  bool
	)

	cmd := &cobra.Command{
		Use:   "invoke URL",
		Short: "Send one request and print the normalized result",
		Long: `Send a request to any Fabric or Power BI endpoint. A 202 with an operation
id is followed until the operation finishes and its result is printed.

The payload is given with --data as inline JSON or @path to read a file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(data)
			if err != nil {
				return err
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			res, err := c.Do(cmd.Context(), fabricbridge.Request{
				Method:   method,
				URL:      args[0],
				Payload:  payload,
				Audience: audience,
			})
			if err != nil {
				return err
			}

			out := invokeOutput{StatusCode: res.StatusCode, Body: res.Body}
			if headers {
				out.Headers = res.Headers
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON payload, or @file")
	cmd.Flags().StringVar(&audience, "audience", fabricbridge.DefaultAudience, "token audience (pbi, fabric, storage or a resource URL)")
	cmd.Flags().BoolVar(&headers, "include-headers", false, "include response headers in the output")
	return cmd
}

// readPayload returns nil for an empty value so no body is sent.
func readPayload(data string) (any, error) {
	if data == "" {
		return nil, nil
	}
	raw := []byte(data)
	if strings.HasPrefix(data, "@") {
		b, err := os.ReadFile(strings.TrimPrefix(data, "@"))
		if err != nil {
			return nil, fmt.Errorf("reading payload: %w", err)
		}
		raw = b
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
