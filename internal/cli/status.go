package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/upfleet/watchtower/internal/core/config"
	"github.com/upfleet/watchtower/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current status of all observed hosts",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	statusRepo := postgres.NewStatusRepo(db)
	uptimeRepo := postgres.NewUptimeRepo(db)

	hosts, err := statusRepo.List(ctx)
	if err != nil {
		slog.Error("Failed to list hosts", "error", err)
		os.Exit(1)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "HOST\tSTATE\tLAST SEEN\tTOTAL UP\tTODAY")

	for _, h := range hosts {
		lastSeen := "never"
		if h.LastSeenAt != nil {
			lastSeen = h.LastSeenAt.Format(time.RFC3339)
		}

		todayPct := "-"
		if day, err := uptimeRepo.GetDay(ctx, h.HostID, today); err == nil && day != nil {
			todayPct = fmt.Sprintf("%.2f%%", day.UptimePct)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			h.HostID, h.State, lastSeen,
			(time.Duration(h.TotalUpSeconds) * time.Second).String(), todayPct)
	}

	_ = w.Flush()
}
