package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/hitushen/isitdown/internal/client"
	"github.com/hitushen/isitdown/internal/models"
	"github.com/hitushen/isitdown/internal/scanparse"
	"github.com/hitushen/isitdown/internal/session"
	"github.com/hitushen/isitdown/internal/tui"
	"github.com/hitushen/isitdown/internal/ui"
)

func scanTarget(args []string, topPorts int) (string, error) {
	host, err := client.ValidateHost(args[0])
	if err != nil {
		return "", err
	}
	if err := client.ValidateTopPorts(topPorts); err != nil {
		return "", err
	}
	return host, nil
}

func newScanCmd() *cobra.Command {
	var (
		topPorts int
		timeout  int
		raw      bool
	)
	cmd := &cobra.Command{
		Use:   "scan <host>",
		Short: "Run a TCP connect scan of the most common ports and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := scanTarget(args, topPorts)
			if err != nil {
				return err
			}
			resp, err := api.Nmap(cmd.Context(), models.NmapRequest{Host: host, TopPorts: topPorts, Timeout: timeout})
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(resp)
			}
			if raw {
				fmt.Print(resp.Stdout)
				fmt.Fprint(os.Stderr, resp.Stderr)
				return nil
			}
			ui.PrintRecords(os.Stdout, host, scanparse.ParseTable(resp.Stdout))
			if resp.ReturnCode != 0 {
				return fmt.Errorf("scanner exited with code %d: %s", resp.ReturnCode, resp.Stderr)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&topPorts, "top-ports", "p", 100, "number of most common ports to scan (1-1000)")
	cmd.Flags().IntVar(&timeout, "timeout", 30, "scan timeout in seconds")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the scanner output unparsed")
	return cmd
}

func newStreamCmd() *cobra.Command {
	var topPorts int
	cmd := &cobra.Command{
		Use:   "stream <host>",
		Short: "Stream a scan, printing ports as they are discovered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := scanTarget(args, topPorts)
			if err != nil {
				return err
			}
			printed := 0
			s, err := api.StreamScan(cmd.Context(), host, topPorts, func(snap session.Snapshot) {
				for ; printed < len(snap.Records); printed++ {
					fmt.Fprintln(os.Stderr, scanparse.FormatRow(snap.Records[printed]))
				}
			})
			if err != nil {
				return err
			}
			return finish(s.Snapshot())
		},
	}
	cmd.Flags().IntVarP(&topPorts, "top-ports", "p", 100, "number of most common ports to scan (1-1000)")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var topPorts int
	cmd := &cobra.Command{
		Use:   "watch <host>",
		Short: "Stream a scan in a live terminal view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := scanTarget(args, topPorts)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			p := tea.NewProgram(tui.NewModel(host, cancel))
			result := make(chan *session.Session, 1)
			go func() {
				s, _ := api.StreamScan(ctx, host, topPorts, func(snap session.Snapshot) {
					p.Send(tui.SnapshotMsg(snap))
				})
				result <- s
			}()

			if _, err := p.Run(); err != nil {
				cancel()
				return err
			}
			cancel()
			s := <-result
			if s == nil {
				return fmt.Errorf("stream could not be opened")
			}
			return finish(s.Snapshot())
		},
	}
	cmd.Flags().IntVarP(&topPorts, "top-ports", "p", 100, "number of most common ports to scan (1-1000)")
	return cmd
}

func finish(snap session.Snapshot) error {
	if flagJSON {
		return printJSON(snap)
	}
	ui.PrintSnapshot(os.Stdout, snap)
	if snap.Status == session.StatusFailed {
		if snap.Message == "" {
			return fmt.Errorf("scan failed")
		}
		return fmt.Errorf("scan failed: %s", snap.Message)
	}
	return nil
}
