package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/civicbot/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show civicbot status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	printStatus("Model", "%s", cfg.OpenRouter.Model)
	if cfg.HasAPIKey() {
		printStatus("API key", "set")
	} else {
		printStatus("API key", "%s", colorize(colorYellow, "missing"))
	}
	printStatus("Min interval", "%s", cfg.Governor.MinInterval)
	printStatus("Courtesy delay", "%s", cfg.Governor.CourtesyDelay)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st, err := newAPIClient(cfg.Server.Port, 5*time.Second).status(ctx)
	switch {
	case errors.Is(err, errServerDown):
		printStatus("Server", "stopped")
		return nil
	case err != nil:
		printStatus("Server", "error (%v)", err)
		return nil
	}

	printStatus("Server", "running on port %d", cfg.Server.Port)
	printStatus("Queue", "%d pending, %d dispatched", st.Pending, st.Dispatched)
	if !st.LastStart.IsZero() {
		printStatus("Last request", "%s", st.LastStart.Local().Format(time.DateTime))
	}
	if st.Location != "" {
		printStatus("Location", "%s", st.Location)
	}
	return nil
}
