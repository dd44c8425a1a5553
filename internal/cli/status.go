package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"tradepost.dev/go/tradepost/internal/config"
	"tradepost.dev/go/tradepost/internal/daemon"
	"tradepost.dev/go/tradepost/internal/trading"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(peersCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running daemon's status",
	RunE:  runStatus,
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List discovered peers and their trade state",
	RunE:  runPeers,
}

func runStatus(cmd *cobra.Command, args []string) error {
	var st daemon.Status
	if err := queryDaemon("/status", &st); err != nil {
		fmt.Println("Daemon:  not running")
		return nil
	}

	fmt.Printf("Daemon:    running (pid %d, up %s)\n", st.PID, st.Uptime)
	fmt.Printf("Address:   %s\n", st.Address)
	fmt.Printf("Session:   %s\n", st.SessionID)
	fmt.Printf("Peers:     %d identified / %d sessions\n", st.IdentifiedPeers, st.Sessions)
	fmt.Printf("Trackers:  %d reachable\n", st.TrackersReachable)
	if st.ActivePartner != "" {
		fmt.Printf("Partner:   %s\n", st.ActivePartner)
	}
	return nil
}

func runPeers(cmd *cobra.Command, args []string) error {
	var peers []trading.PeerSnapshot
	if err := queryDaemon("/peers", &peers); err != nil {
		return fmt.Errorf("query daemon: %w", err)
	}

	if len(peers) == 0 {
		fmt.Println("No identified peers")
		return nil
	}

	for _, p := range peers {
		marker := " "
		if p.HasUnseenUpdate {
			marker = "*"
		}
		fmt.Printf("%s %s  %s\n", marker, p.Address, p.State)
	}
	return nil
}

// queryDaemon hits the local event endpoint and decodes the JSON reply
func queryDaemon(endpoint string, out any) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 3 * time.Second}
	url := fmt.Sprintf("http://127.0.0.1:%d%s", cfg.Daemon.EventPort, endpoint)
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
