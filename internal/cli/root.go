// Package cli implements the tradepost command line interface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	cfgFile string
)

// SetVersion sets the version printed by the version command
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "tradepost",
	Short: "Peer-to-peer trade negotiation daemon",
	Long: `tradepost - peer-to-peer trade negotiation

Discovers peers through websocket trackers and the local network, binds
them to their wallet addresses, and negotiates asset trades through a
lock-in protocol. Settlement is left to an external wallet.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.config/tradepost/config.toml)")
}

// configPath resolves the config file location, honoring the --config flag
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tradepost", "config.toml"), nil
}
