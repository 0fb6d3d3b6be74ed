package main

import (
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitushen/isitdown/internal/client"
	"github.com/hitushen/isitdown/internal/models"
	"github.com/hitushen/isitdown/internal/ui"
)

func newHTTPCmd() *cobra.Command {
	var (
		method  string
		headers string
		body    string
		timeout float64
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "http <url>",
		Short: "Fetch a URL through the server and show status, headers and body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hdrs, err := client.ParseHeaders(headers)
			if err != nil {
				return err
			}
			req := models.HTTPCheckRequest{
				URL:     strings.TrimSpace(args[0]),
				Method:  method,
				Timeout: timeout,
				Verbose: verbose,
				Headers: hdrs,
				Body:    body,
			}
			resp, err := api.HTTP(cmd.Context(), req)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(resp)
			}
			ui.PrintHTTP(os.Stdout, req.URL, resp)
			return nil
		},
	}
	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVarP(&headers, "headers", "H", "", `request headers as a JSON object, e.g. '{"User-Agent":"isitdown"}'`)
	cmd.Flags().StringVarP(&body, "data", "d", "", "request body")
	cmd.Flags().Float64Var(&timeout, "timeout", 10, "request timeout in seconds")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "return the full body instead of the first 2000 characters")
	return cmd
}

func newPortCmd() *cobra.Command {
	var timeout float64
	cmd := &cobra.Command{
		Use:   "port <host[:port]> [port]",
		Short: "Check whether a TCP port accepts connections",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, port, err := portTarget(args)
			if err != nil {
				return err
			}
			resp, err := api.Port(cmd.Context(), models.PortCheckRequest{Host: host, Port: port, Timeout: timeout})
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(resp)
			}
			ui.PrintPort(os.Stdout, host, port, resp)
			return nil
		},
	}
	cmd.Flags().Float64Var(&timeout, "timeout", 5, "connect timeout in seconds")
	return cmd
}

// portTarget 支持 "host port"、"host:port" 与仅 "host"（默认 80）三种写法。
func portTarget(args []string) (string, int, error) {
	host := strings.TrimSpace(args[0])
	rawPort := "80"
	if len(args) == 2 {
		rawPort = args[1]
	} else if h, p, err := net.SplitHostPort(host); err == nil {
		host, rawPort = h, p
	}
	host, err := client.ValidateHost(host)
	if err != nil {
		return "", 0, err
	}
	port, err := client.ParsePort(rawPort)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
