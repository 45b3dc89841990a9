package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"moodle-harvest/internal/components/telemetry"
	"moodle-harvest/internal/config"
	"moodle-harvest/lib/platforms/moodle/core"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "moodle-harvest",
	Short:         "moodle-harvest exports the content of moodle courses to csv files.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configPath *string

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The json5 config file, config.local.json5 next to it overrides it.")
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("read config: %w", err)
	}
	err = cfg.Validate()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func createClient(ctx context.Context, cfg config.Config, tel telemetry.API) (*core.Client, error) {
	client, err := core.NewClient(core.ClientOptions{
		BaseUrl:           cfg.BaseUrl,
		Username:          cfg.Username,
		Password:          cfg.Password,
		Token:             cfg.Token,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, tel)
	if err != nil {
		return nil, fmt.Errorf("initialize moodle client: %w", err)
	}
	err = client.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if client.SessionMode() {
		slog.Info("using a browser session, the token endpoint is unavailable", "base_url", cfg.BaseUrl)
	}
	return client, nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
