package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"zigbee-ezsp-host/internal/coordinator"
	"zigbee-ezsp-host/internal/store"
)

var (
	scanActive   bool
	scanChannels []uint
	scanDuration uint8

	backupOutput string
	backupStored bool
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the NCP and network state",
	RunE:  runInfo,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan channels for noise or for other networks",
	Long: `Run an energy scan (default) or an active scan (--active) and print one
line per channel or per network found.

Examples:
  ezsp-host scan
  ezsp-host scan --channels 15,20,25 --duration 5
  ezsp-host scan --active`,
	RunE: runScan,
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write the network backup, including the network key, as JSON",
	Long: `Read the network parameters and key from the NCP, save them to the store
and write them as JSON. With --stored the last saved backup is written
without opening the serial port.`,
	RunE: runBackup,
}

func init() {
	rootCmd.AddCommand(infoCmd, scanCmd, backupCmd)

	scanCmd.Flags().BoolVar(&scanActive, "active", false, "Look for beaconing networks instead of measuring noise")
	scanCmd.Flags().UintSliceVar(&scanChannels, "channels", nil, "Channels to scan, 11-26 (default all)")
	scanCmd.Flags().Uint8Var(&scanDuration, "duration", coordinator.DefaultScanDuration, "Scan duration exponent per channel, 0-14")

	backupCmd.Flags().StringVarP(&backupOutput, "output", "o", "-", "Output file, - for stdout")
	backupCmd.Flags().BoolVar(&backupStored, "stored", false, "Write the stored backup without touching the NCP")
}

func writeIndented(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runInfo(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	h, err := openHost(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer h.Close()

	counters, err := h.coord.Counters(cmd.Context())
	if err != nil {
		logger.Warn("read counters", "err", err)
	}
	return writeIndented(cmd.OutOrStdout(), map[string]interface{}{
		"info":     h.coord.Info(),
		"counters": counters,
	})
}

// channelMask turns channel numbers into a scan mask. No channels means all.
func channelMask(channels []uint) (uint32, error) {
	var mask uint32
	for _, ch := range channels {
		if ch < 11 || ch > 26 {
			return 0, fmt.Errorf("channel %d out of range 11-26", ch)
		}
		mask |= 1 << ch
	}
	return mask, nil
}

func runScan(cmd *cobra.Command, _ []string) error {
	mask, err := channelMask(scanChannels)
	if err != nil {
		return err
	}
	if scanDuration > 14 {
		return fmt.Errorf("duration must be 0-14")
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	h, err := openHost(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer h.Close()

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if scanActive {
		found, err := h.coord.ActiveScan(cmd.Context(), mask, scanDuration)
		if err != nil {
			return fmt.Errorf("active scan: %w", err)
		}
		fmt.Fprintln(tw, "CHANNEL\tPAN ID\tEXTENDED PAN ID\tJOINABLE\tLQI\tRSSI")
		for _, n := range found {
			fmt.Fprintf(tw, "%d\t0x%04X\t%s\t%t\t%d\t%d\n",
				n.Network.Channel, n.Network.PanID, n.Network.ExtendedPanID, n.Network.AllowingJoin, n.LinkQuality, n.RSSI)
		}
		return nil
	}

	results, err := h.coord.EnergyScan(cmd.Context(), mask, scanDuration)
	if err != nil {
		return fmt.Errorf("energy scan: %w", err)
	}
	fmt.Fprintln(tw, "CHANNEL\tMAX RSSI")
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%d\n", r.Channel, r.MaxRSSI)
	}
	return nil
}

// backupFile is the exported form of a backup. Unlike the API it carries
// the network key.
type backupFile struct {
	*store.NetworkBackup
	NetworkKey string `json:"network_key"`
}

func runBackup(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	var b *store.NetworkBackup
	if backupStored {
		db, err := store.NewBoltStore(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		if b, err = db.GetBackup(); err != nil {
			return err
		}
	} else {
		h, err := openHost(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer h.Close()
		if b, err = h.coord.Backup(cmd.Context()); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if backupOutput != "-" {
		f, err := os.OpenFile(backupOutput, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("create backup file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := writeIndented(out, backupFile{NetworkBackup: b, NetworkKey: b.NetworkKey}); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	logger.Info("backup written", "output", backupOutput, "pan_id", fmt.Sprintf("0x%04X", b.PanID), "channel", b.Channel)
	return nil
}
