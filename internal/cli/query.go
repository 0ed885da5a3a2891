package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"recurcal/internal/ics"
	"recurcal/internal/model"
	"recurcal/internal/schedule"
	"recurcal/recur"
)

// walkCmd builds "next" or "previous".
func walkCmd(g *globals, name string) *cobra.Command {
	var src source
	var count int
	var from string
	var layout string

	c := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Print the %s occurrences after or before the anchor date", name),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, cfg, err := src.load(cmd.Context(), g)
			if err != nil {
				return err
			}
			r := s.Recurrence
			if err := setFrom(r, from, true); err != nil {
				return err
			}
			if count <= 0 {
				count = cfg.DefaultCount
			}

			var times []time.Time
			if name == "next" {
				times, err = r.Next(count)
			} else {
				times, err = r.Previous(count)
			}
			if err != nil {
				return err
			}
			return printTimes(cmd.OutOrStdout(), r, times, layout)
		},
	}

	src.register(c)
	c.Flags().IntVarP(&count, "count", "n", 0, "Number of occurrences (defaults to default_count)")
	c.Flags().StringVar(&from, "from", "", "Anchor date YYYY-MM-DD (defaults to today)")
	c.Flags().StringVar(&layout, "format", "", "Go time layout for output")
	return c
}

func allCmd(g *globals) *cobra.Command {
	var src source
	var from string
	var layout string

	c := &cobra.Command{
		Use:   "all",
		Short: "Print every occurrence up to the end date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := src.load(cmd.Context(), g)
			if err != nil {
				return err
			}
			r := s.Recurrence
			if err := setFrom(r, from, false); err != nil {
				return err
			}
			times, err := r.All()
			if err != nil {
				return err
			}
			return printTimes(cmd.OutOrStdout(), r, times, layout)
		},
	}

	src.register(c)
	c.Flags().StringVar(&from, "from", "", "First date YYYY-MM-DD (defaults to start)")
	c.Flags().StringVar(&layout, "format", "", "Go time layout for output")
	return c
}

func matchesCmd(g *globals) *cobra.Command {
	var src source

	c := &cobra.Command{
		Use:   "matches DATE",
		Short: "Report whether DATE is an occurrence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := recur.ParseDate(args[0])
			if err != nil {
				return err
			}
			s, _, err := src.load(cmd.Context(), g)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), s.Recurrence.Matches(d))
			return err
		},
	}

	src.register(c)
	return c
}

func rruleCmd(g *globals) *cobra.Command {
	var src source

	c := &cobra.Command{
		Use:   "rrule",
		Short: "Print the iCalendar RRULE equivalent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := src.load(cmd.Context(), g)
			if err != nil {
				return err
			}
			rule, err := ics.RRuleString(s.Recurrence)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rule)
			return err
		},
	}

	src.register(c)
	return c
}

func icsCmd(g *globals) *cobra.Command {
	var src source

	c := &cobra.Command{
		Use:   "ics",
		Short: "Export one schedule, or every configured schedule, as iCalendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var schedules []model.Schedule
			if src.key != "" || src.file != "" {
				s, _, err := src.load(cmd.Context(), g)
				if err != nil {
					return err
				}
				schedules = append(schedules, s)
			} else {
				cfg, err := g.config()
				if err != nil {
					return err
				}
				res := schedule.NewResolver(cfg, ics.NewFetcher(cfg.CacheDir), 0)
				if schedules, err = res.ResolveAll(cmd.Context()); err != nil {
					return err
				}
			}

			out, err := ics.Export(schedules, ics.ExportOptions{})
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}

	src.register(c)
	return c
}

// setFrom anchors r on the given date. An empty value keeps the current
// anchor, or moves it to today when today is set.
func setFrom(r *recur.Recurrence, from string, today bool) error {
	if from != "" {
		d, err := recur.ParseDate(from)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		r.SetFrom(d)
		return nil
	}
	if _, ok := r.From(); !ok && today {
		r.SetFrom(recur.DateOf(time.Now().In(r.Location())))
	}
	return nil
}

// printTimes writes one occurrence per line. Without a layout, all-day
// recurrences print dates and timed ones print RFC 3339.
func printTimes(w io.Writer, r *recur.Recurrence, times []time.Time, layout string) error {
	if layout == "" {
		layout = time.RFC3339
		if r.TimeOfDay() == 0 {
			layout = time.DateOnly
		}
	}
	for _, line := range recur.Format(layout, times) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
