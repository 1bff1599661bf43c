package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MikhailRaia/shortlinks/internal/display"
)

const rankingURLWidth = 40

func newRankingsCmd(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "rankings",
		Short: "Show the most clicked links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lb, err := opts.client().Leaderboard(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			st := newStyles(out)
			summary := fmt.Sprintf("Links: %s  Clicks: %s  Average: %s  Top: %s",
				display.FormatNumber(int64(lb.Stats.TotalURLs)),
				display.FormatNumber(lb.Stats.TotalClicks),
				display.FormatAverage(lb.Stats.AverageClicks),
				display.FormatNumber(lb.Stats.MaxClicks),
			)
			fmt.Fprintf(out, "%s\n\n", st.header.Render(summary))

			if len(lb.Links) == 0 {
				fmt.Fprintln(out, "No links ranked yet")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tID\tURL\tCLICKS\tBADGE")
			// The styled badge stays in the last column so escape codes do not skew alignment.
			for i, link := range lb.Links {
				rank := i + 1
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					strconv.Itoa(rank),
					link.ID,
					display.TruncateURL(link.OriginalURL, rankingURLWidth),
					display.FormatNumber(link.ClickCount),
					st.badge(rank),
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of links to show (max 100)")
	return cmd
}
