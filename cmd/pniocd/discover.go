package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wtp/pnioc/dcp"
	"github.com/wtp/pnioc/internal/pnet"
	"github.com/wtp/pnioc/pnframe"
)

func newDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Broadcast an Identify-All DCP request and print the responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)

			sock, err := pnet.OpenPacketSocket(cfg.Interface, pnframe.EtherTypePROFINET)
			if err != nil {
				return fmt.Errorf("discover: %w", err)
			}
			defer sock.Close()

			reports, err := dcp.NewDiscoverer(sock, log).Discover(cfg.DiscoveryTimeout)
			if err != nil {
				return fmt.Errorf("discover: %w", err)
			}
			if len(reports) == 0 {
				fmt.Println("no devices responded")
				return nil
			}
			for _, r := range reports {
				fmt.Printf("%-20s %-16s %-18s vendor=0x%04X device=0x%04X\n", r.Station, r.IP, r.MAC, r.VendorID, r.DeviceID)
			}
			return nil
		},
	}
	return cmd
}
