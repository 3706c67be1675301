package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BioHazard786/warpcall/internal/config"
	"github.com/BioHazard786/warpcall/internal/logging"
	"github.com/BioHazard786/warpcall/internal/relay"
	"github.com/BioHazard786/warpcall/internal/ui"
	"github.com/spf13/cobra"
)

var flagListen string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the signaling relay",
	Long: `Run the signaling relay that introduces room members and forwards their
offers, answers and ICE candidates. It serves /ws, /health and /metrics.

Examples:
  warpcall relay
  warpcall relay --listen :9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelay()
	},
}

func runRelay() error {
	log, closer, err := logging.Init()
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closer.Close()

	cfg, err := config.Load(config.Options{ConfigFile: flagConfig, ListenAddr: flagListen})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.PrintInfof("Relay listening on %s", cfg.ListenAddr)
	return relay.NewServer(cfg.ListenAddr, log).Run(ctx)
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().StringVarP(&flagListen, "listen", "l", "", "Address to listen on (default :8080)")
}
