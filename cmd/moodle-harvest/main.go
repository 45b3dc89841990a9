package main

import (
	"log/slog"
	"os"

	"moodle-harvest/cmd/moodle-harvest/commands"
	"moodle-harvest/lib/util/serviceutil"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, cancel := serviceutil.SignalContext()
	err := commands.ExecuteContext(ctx)
	cancel()
	if err != nil {
		serviceutil.Fatal("moodle-harvest failed", err)
	}
}
