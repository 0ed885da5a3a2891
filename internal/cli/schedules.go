package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"recurcal/internal/config"
	"recurcal/internal/ics"
	"recurcal/internal/schedule"
)

func schedulesCmd(g *globals) *cobra.Command {
	c := &cobra.Command{
		Use:   "schedules",
		Short: "Manage configured schedules",
	}
	c.AddCommand(schedulesListCmd(g), schedulesAddCmd(g))
	return c
}

func schedulesListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTART\tRRULE")
			for _, sc := range cfg.Schedules {
				rule := "-"
				if r, err := schedule.Build(cfg, sc); err == nil {
					if s, err := ics.RRuleString(r); err == nil {
						rule = s
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", sc.ID, sc.Name, sc.Recurrence.Start, rule)
			}
			return tw.Flush()
		},
	}
}

func schedulesAddCmd(g *globals) *cobra.Command {
	var sc config.ScheduleConfig
	var file string
	var cronExpr string
	var start string

	c := &cobra.Command{
		Use:   "add",
		Short: "Add a schedule from a record file or a cron expression",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case file != "":
				rec, err := readRecord(file)
				if err != nil {
					return err
				}
				sc.Recurrence = rec
			case cronExpr != "":
				r, err := cronRecurrence(g, cronExpr, start)
				if err != nil {
					return err
				}
				sc.Recurrence = r.Save()
			default:
				return errors.New("one of --file or --cron is required")
			}

			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			id, err := cfg.AddSchedule(sc)
			if err != nil {
				return err
			}
			if err := cfg.Save(g.configPath); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		},
	}

	c.Flags().StringVar(&sc.ID, "id", "", "Schedule ID (defaults to a new UUID)")
	c.Flags().StringVar(&sc.Name, "name", "", "Schedule name")
	c.Flags().StringSliceVar(&sc.Holidays, "holidays", nil, "Holiday ICS feed URL (repeatable)")
	c.Flags().StringVarP(&file, "file", "f", "", "Recurrence record file (JSON or YAML)")
	c.Flags().StringVar(&cronExpr, "cron", "", "Cron expression to convert")
	c.Flags().StringVar(&start, "start", "", "Start date for --cron (defaults to today)")
	c.MarkFlagsMutuallyExclusive("file", "cron")
	_ = c.MarkFlagRequired("name")
	return c
}
