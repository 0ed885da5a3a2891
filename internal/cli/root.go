// Package cli implements the recurcal command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"recurcal/internal/config"
	"recurcal/internal/ics"
	appLog "recurcal/internal/log"
	"recurcal/internal/model"
	"recurcal/internal/schedule"
	"recurcal/recur"
)

const defaultConfigPath = "./config.yaml"

func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// globals holds persistent flag values shared by every command.
type globals struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:          "recurcal",
		Short:        "Evaluate recurring date rules and serve them over HTTP",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if g.logLevel == "" {
				return nil
			}
			level, err := appLog.ParseLevel(g.logLevel)
			if err != nil {
				return err
			}
			appLog.SetLevel(level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&g.configPath, "config", defaultConfigPath, "Path to config file")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")

	cmd.AddCommand(
		walkCmd(g, "next"),
		walkCmd(g, "previous"),
		allCmd(g),
		matchesCmd(g),
		rruleCmd(g),
		icsCmd(g),
		cronCmd(g),
		schedulesCmd(g),
		serveCmd(g),
	)
	return cmd
}

// config reads the config file when it exists. Unlike config.Load it never
// writes a default file, so read-only commands have no side effects.
func (g *globals) config() (*config.Config, error) {
	if _, err := os.Stat(g.configPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel == "" {
		if level, err := appLog.ParseLevel(cfg.LogLevel); err == nil {
			appLog.SetLevel(level)
		}
	}
	return cfg, nil
}

// source selects the recurrence a command works on: a configured schedule
// or a record file.
type source struct {
	key  string
	file string
}

func (s *source) register(c *cobra.Command) {
	c.Flags().StringVarP(&s.key, "schedule", "s", "", "Configured schedule ID or name")
	c.Flags().StringVarP(&s.file, "file", "f", "", "Recurrence record file (JSON or YAML)")
	c.MarkFlagsMutuallyExclusive("schedule", "file")
}

func (s *source) load(ctx context.Context, g *globals) (model.Schedule, *config.Config, error) {
	cfg, err := g.config()
	if err != nil {
		return model.Schedule{}, nil, err
	}

	switch {
	case s.file != "":
		rec, err := readRecord(s.file)
		if err != nil {
			return model.Schedule{}, nil, err
		}
		opts, err := schedule.Options(cfg)
		if err != nil {
			return model.Schedule{}, nil, err
		}
		r, err := recur.FromRecord(rec, opts...)
		if err != nil {
			return model.Schedule{}, nil, fmt.Errorf("%s: %w", s.file, err)
		}
		name := strings.TrimSuffix(filepath.Base(s.file), filepath.Ext(s.file))
		return model.Schedule{ID: name, Name: name, Recurrence: r}, cfg, nil
	case s.key != "":
		res := schedule.NewResolver(cfg, ics.NewFetcher(cfg.CacheDir), 0)
		sc, err := res.Resolve(ctx, s.key)
		if err != nil {
			return model.Schedule{}, nil, err
		}
		return sc, cfg, nil
	default:
		return model.Schedule{}, nil, errors.New("one of --schedule or --file is required")
	}
}

// readRecord decodes a recurrence record. Files ending in .json are read as
// JSON, everything else as YAML.
func readRecord(path string) (recur.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return recur.Record{}, err
	}
	var rec recur.Record
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &rec)
	} else {
		err = yaml.Unmarshal(data, &rec)
	}
	if err != nil {
		return recur.Record{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return rec, nil
}
