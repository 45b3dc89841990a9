package commands

import (
	"moodle-harvest/internal/components/telemetry"
	"moodle-harvest/internal/harvest"
	"moodle-harvest/lib/platforms/moodle/core"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var coursesSearch *string

func init() {
	coursesSearch = coursesCmd.Flags().String("search", "", "An idnumber pattern, '*' matches anything. Defaults to the configured selection.")
	rootCmd.AddCommand(coursesCmd)
}

var coursesCmd = &cobra.Command{
	Use:   "courses [--search <pattern>]",
	Short: "Lists the courses a harvest would select.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		client, err := createClient(ctx, cfg, telemetry.SlogAPI{})
		if err != nil {
			return err
		}
		courses, err := client.Courses(ctx)
		if err != nil {
			return err
		}

		var unmatched []harvest.Unmatched
		switch {
		case *coursesSearch != "":
			courses, _, err = harvest.SelectCourses(courses, nil, *coursesSearch)
		case cfg.HasSelection():
			courses, unmatched, err = harvest.SelectCourses(courses, cfg.IDNumberList, cfg.IDNumberSearch)
		}
		if err != nil {
			return err
		}

		printCourses(courses, unmatched)
		return nil
	},
}

func printCourses(courses []core.Course, unmatched []harvest.Unmatched) {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "ID number", "Short name", "Full name", "Visible"})
	for _, c := range courses {
		t.AppendRow(table.Row{c.ID, c.IDNumber, c.ShortName, c.FullName, bool(c.Visible)})
	}
	if len(unmatched) > 0 {
		t.AppendSeparator()
		for _, u := range unmatched {
			t.AppendRow(table.Row{"", u.IDNumber, "not found", u.Suggestion, ""})
		}
	}
	t.Render()
}
