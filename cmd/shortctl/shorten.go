package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MikhailRaia/shortlinks/internal/display"
	"github.com/MikhailRaia/shortlinks/internal/hashing"
)

func newShortenCmd(opts *options) *cobra.Command {
	var algorithm string

	cmd := &cobra.Command{
		Use:   "shorten <url>",
		Short: "Create a short link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, created, err := opts.client().Shorten(cmd.Context(), args[0], algorithm)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !created {
				fmt.Fprintln(out, "Link already exists")
			}
			fmt.Fprintf(out, "Short URL:  %s\n", link.ShortURL)
			fmt.Fprintf(out, "Algorithm:  %s\n", link.Algorithm)
			fmt.Fprintf(out, "Expires:    %s\n", display.FormatDateTime(link.ExpiryDate))
			return nil
		},
	}

	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", hashing.Default, "Hash algorithm: MD5, SHA256, CRC32, ADLER32 or BASE62")
	return cmd
}
