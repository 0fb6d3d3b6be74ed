package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hitushen/isitdown/internal/models"
	"github.com/hitushen/isitdown/internal/ui"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [service]",
		Short: "Show the current status of monitored services",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []models.ServiceStatus
			if len(args) == 1 {
				st, err := api.ServiceStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				statuses = []models.ServiceStatus{*st}
			} else {
				all, err := api.ServicesStatus(cmd.Context())
				if err != nil {
					return err
				}
				statuses = all
			}
			if flagJSON {
				return printJSON(statuses)
			}
			ui.PrintStatuses(os.Stdout, statuses)
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "history <service>",
		Short: "Show hourly downtime for a monitored service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := api.ServiceHistory(cmd.Context(), args[0], hours)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(h)
			}
			ui.PrintHistory(os.Stdout, h)
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "number of hours of history")
	return cmd
}

func newIPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ip",
		Short: "Show your public IP address as seen by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ip, err := api.ClientIP(cmd.Context())
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(models.ClientIP{IP: ip})
			}
			fmt.Println(ip)
			return nil
		},
	}
}
