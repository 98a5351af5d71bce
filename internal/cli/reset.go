package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/upfleet/watchtower/internal/core/config"
	"github.com/upfleet/watchtower/internal/infra/storage/postgres"
)

var resetHostCmd = &cobra.Command{
	Use:   "reset-host [host_id]",
	Short: "Remove a host's status record so it re-registers on its next heartbeat",
	Args:  cobra.ExactArgs(1),
	Run:   runResetHost,
}

func init() {
	rootCmd.AddCommand(resetHostCmd)
}

func runResetHost(cmd *cobra.Command, args []string) {
	hostID := args[0]

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

	// Retention is operator policy, not engine behavior, so this is a
	// direct SQL override rather than a repository method.
	res, err := db.ExecContext(ctx, "DELETE FROM host_status WHERE host_id = $1", hostID)
	if err != nil {
		slog.Error("Failed to reset host", "error", err)
		os.Exit(1)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		fmt.Printf("No record found for host %s\n", hostID)
		return
	}
	fmt.Printf("Successfully removed status record for host %s\n", hostID)
}
