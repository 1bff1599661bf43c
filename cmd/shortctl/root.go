package main

import (
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikhailRaia/shortlinks/internal/client"
)

const defaultServer = "http://localhost:8080"

type options struct {
	server  string
	timeout time.Duration
}

func (o *options) client() *client.Client {
	return client.New(o.server, &http.Client{Timeout: o.timeout})
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	server := os.Getenv("SHORTLINKS_SERVER")
	if server == "" {
		server = defaultServer
	}

	rootCmd := &cobra.Command{
		Use:   "shortctl",
		Short: "Shorten links and inspect their statistics",
		Long: `shortctl talks to a shortlinks server.

Available commands:
  shorten  - create a short link
  info     - show one link with its expiry countdown
  rankings - show the most clicked links`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.server, "server", server, "Server base URL (env SHORTLINKS_SERVER)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", client.DefaultTimeout, "Request timeout")

	rootCmd.AddCommand(
		newShortenCmd(opts),
		newInfoCmd(opts),
		newRankingsCmd(opts),
	)
	return rootCmd
}
