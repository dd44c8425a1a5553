package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tradepost.dev/go/tradepost/internal/config"
	"tradepost.dev/go/tradepost/internal/daemon"
	"tradepost.dev/go/tradepost/internal/identity"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	Long: `Run the tradepost daemon in the foreground.

The daemon announces to the configured trackers, discovers LAN peers
over mDNS, and exposes a local event endpoint for UIs. Stop it with
Ctrl-C or SIGTERM.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ident, err := resolveIdentity(cfg)
	if err != nil {
		return err
	}

	d, err := daemon.New(&daemon.Options{Config: cfg, Identity: ident})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	d.Wait(ctx)
	return nil
}

// resolveIdentity picks the identity per config precedence: an explicit
// address wins, then a mnemonic, then a generated dev identity.
func resolveIdentity(cfg *config.Config) (*identity.Identity, error) {
	switch {
	case cfg.Identity.Address != "":
		return identity.FromAddress(cfg.Identity.Address)
	case cfg.Identity.Mnemonic != "":
		return identity.FromMnemonic(cfg.Identity.Mnemonic)
	default:
		ident, err := identity.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate identity: %w", err)
		}
		fmt.Printf("Generated dev identity %s\n", ident.Address)
		fmt.Printf("Recovery mnemonic: %s\n", ident.Mnemonic)
		return ident, nil
	}
}
