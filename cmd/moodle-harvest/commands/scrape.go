package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"moodle-harvest/internal/components/telemetry"
	"moodle-harvest/internal/harvest"
	"moodle-harvest/internal/store"
	tracing "moodle-harvest/lib/telemetry"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var scrapeSqlite *string

func init() {
	scrapeSqlite = scrapeCmd.Flags().String("sqlite", "", "A sqlite database the datasets are also written to, overrides the config.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--config <config.json5>] [--sqlite <path/to/output.db>]",
	Short: "Harvests every selected course into the data directory.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.HasSelection() {
			return errors.New("no course selected, set idnumber_search or idnumber_list")
		}
		ctx := cmd.Context()

		traces, err := tracing.Setup(ctx, "moodle-harvest", tracing.Config{HttpEndpoint: cfg.OtlpEndpoint})
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		defer traces.Shutdown(context.Background())

		events, err := telemetry.OpenEventLog(cfg.LogDir, telemetry.SlogAPI{})
		if err != nil {
			return err
		}
		defer events.Close()

		client, err := createClient(ctx, cfg, events)
		if err != nil {
			return err
		}

		sinks := []store.Sink{store.CSVSink{Dir: cfg.DataDir}}
		sqlitePath := cfg.SQLite
		if *scrapeSqlite != "" {
			sqlitePath = *scrapeSqlite
		}
		if sqlitePath != "" {
			db, err := store.OpenSQLite(sqlitePath)
			if err != nil {
				return fmt.Errorf("open sqlite: %w", err)
			}
			defer db.Close()
			sinks = append(sinks, db)
		}

		h := harvest.NewHarvester(client, harvest.Options{
			DataDir:   cfg.DataDir,
			IDNumbers: cfg.IDNumberList,
			Search:    cfg.IDNumberSearch,
		}, events, sinks...)

		t1 := time.Now()
		summary, err := h.Run(ctx)
		slog.Info("harvest time", "seconds", time.Since(t1).Seconds(), "events", events.Path())

		printSummary(summary)
		return err
	},
}

func printSummary(summary harvest.Summary) {
	t := newTable()
	t.AppendHeader(table.Row{"Course", "Dataset", "Rows", "Unused files", "Unused size", "Large unused"})
	for _, course := range summary.Courses {
		for _, ds := range course.Datasets {
			if ds.Rows == 0 {
				continue
			}
			t.AppendRow(table.Row{
				course.Course.IDNumber,
				ds.Name,
				ds.Rows,
				ds.UnusedFiles,
				humanize.IBytes(uint64(ds.UnusedBytes)),
				ds.LargeUnused,
			})
		}
		t.AppendSeparator()
	}
	for _, c := range summary.Failed {
		t.AppendRow(table.Row{c.IDNumber, "failed, see the event log", "", "", "", ""})
	}
	for _, u := range summary.Unmatched {
		hint := "no course"
		if u.Suggestion != "" {
			hint = fmt.Sprintf("no course, did you mean %s?", u.Suggestion)
		}
		t.AppendRow(table.Row{u.IDNumber, hint, "", "", "", ""})
	}
	t.Render()
}
