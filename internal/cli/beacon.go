package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/upfleet/watchtower/internal/beacon"
	"github.com/upfleet/watchtower/internal/core/config"
	"github.com/upfleet/watchtower/internal/infra/mqtt"
)

var (
	beaconQueue string
	beaconHost  string
)

var beaconCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Run the heartbeat beacon on a monitored host",
	Run:   runBeacon,
}

func init() {
	beaconCmd.Flags().StringVarP(&beaconQueue, "queue-name", "q", "uptime_queue",
		"queue the heartbeats are published to")
	beaconCmd.Flags().StringVarP(&beaconHost, "server-name", "s", "",
		"name uniquely identifying this host (defaults to the queue name)")
	rootCmd.AddCommand(beaconCmd)
}

func runBeacon(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		initLogger(slog.LevelInfo)
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	initLogger(slogLevel)

	client, err := mqtt.NewClient(cfg.MQTT)
	if err != nil {
		slog.Error("Failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	b := beacon.New(beaconQueue, beaconHost, cfg.Heartbeat.Interval, client)
	if err := b.Start(); err != nil {
		slog.Error("Failed to start beacon", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, stopping beacon...", "signal", sig)

	if err := b.Stop(); err != nil {
		slog.Error("Error stopping beacon", "error", err)
		os.Exit(1)
	}
}
