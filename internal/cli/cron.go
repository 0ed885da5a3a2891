package cli

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"recurcal/internal/cronspec"
	"recurcal/recur"
)

func cronCmd(g *globals) *cobra.Command {
	var start string

	c := &cobra.Command{
		Use:   "cron EXPR",
		Short: "Convert a cron expression into a recurrence record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := cronRecurrence(g, args[0], start)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(r.Save())
		},
	}

	c.Flags().StringVar(&start, "start", "", "Start date YYYY-MM-DD (defaults to today)")
	return c
}

func cronRecurrence(g *globals, expr, start string) (*recur.Recurrence, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	d := recur.DateOf(time.Now().In(loc))
	if start != "" {
		if d, err = recur.ParseDate(start); err != nil {
			return nil, err
		}
	}
	return cronspec.Parse(expr, d, recur.WithLocation(loc), recur.WithWeekStart(cfg.WeekStartDay()))
}
