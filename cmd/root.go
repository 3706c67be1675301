package cmd

import (
	"os"

	"github.com/BioHazard786/warpcall/internal/config"
	"github.com/BioHazard786/warpcall/internal/ui"
	"github.com/BioHazard786/warpcall/internal/version"
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagServer   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warpcall",
	Short: "Peer-to-peer video calls in the terminal using WebRTC",
	Long: `warpcall puts two people in a room and connects them directly with WebRTC.
A small relay server introduces the members and carries the offer, answer and
ICE candidates; media then flows peer to peer.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.Options{
		ConfigFile: flagConfig,
		Server:     flagServer,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	})
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&flagConfig, "config", "c", "", "Config file (default ./warpcall.yaml or the user config dir)")
	flags.StringVarP(&flagServer, "server", "S", "", "Relay websocket URL")
	flags.StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	flags.StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	flags.StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	flags.StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	flags.BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
}
