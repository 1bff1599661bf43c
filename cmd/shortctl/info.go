package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikhailRaia/shortlinks/internal/client"
	"github.com/MikhailRaia/shortlinks/internal/display"
)

const infoURLWidth = 60

var watchInterval = time.Second

func newInfoCmd(opts *options) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "info <id>",
		Short: "Show a short link with its expiry countdown",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return client.ErrNoShortCode
			}

			link, err := opts.client().GetURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printLink(out, link, time.Now())

			if watch {
				return watchCountdown(cmd, link)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep refreshing the countdown until the link expires")
	return cmd
}

func printLink(out io.Writer, link client.Link, now time.Time) {
	fmt.Fprintf(out, "Short URL:  %s\n", link.ShortURL)
	fmt.Fprintf(out, "Original:   %s\n", display.TruncateURL(link.OriginalURL, infoURLWidth))
	fmt.Fprintf(out, "Created:    %s\n", display.FormatDateTime(link.CreatedDate))
	fmt.Fprintf(out, "Expires:    %s\n", display.FormatDateTime(link.ExpiryDate))
	fmt.Fprintf(out, "Algorithm:  %s\n", link.Algorithm)
	fmt.Fprintf(out, "Clicks:     %s\n", display.FormatNumber(link.ClickCount))
	fmt.Fprintf(out, "Time left:  %s\n", countdown(link, now))
	fmt.Fprintf(out, "QR code:    %s\n", link.QRCodeURL)
}

func countdown(link client.Link, now time.Time) string {
	if link.ExpiryDate.IsZero() {
		return "Never expires"
	}
	return display.Countdown(link.ExpiryDate, now).String()
}

func watchCountdown(cmd *cobra.Command, link client.Link) error {
	if link.ExpiryDate.IsZero() {
		return nil
	}

	out := cmd.OutOrStdout()
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cmd.Context().Done():
			fmt.Fprintln(out)
			return nil
		case now := <-ticker.C:
			remaining := display.Countdown(link.ExpiryDate, now)
			fmt.Fprintf(out, "\rTime left:  %-24s", remaining)
			if remaining.Expired {
				fmt.Fprintln(out)
				return nil
			}
		}
	}
}
