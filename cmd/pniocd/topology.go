package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wtp/pnioc/internal/topostore"
	"github.com/wtp/pnioc/registry"
)

func newTopologyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Export or import the persisted device topology",
	}
	cmd.AddCommand(newTopologyExportCmd())
	cmd.AddCommand(newTopologyImportCmd())
	return cmd
}

func newTopologyExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.json>",
		Short: "Write the persisted topology to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := topostore.Open(cfg.TopologyDBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.LoadTopology()
			if err != nil {
				return fmt.Errorf("topology export: %w", err)
			}
			payload, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return fmt.Errorf("topology export: %w", err)
			}
			if err := os.WriteFile(args[0], payload, 0o644); err != nil {
				return fmt.Errorf("topology export: %w", err)
			}
			fmt.Printf("exported %d device(s) to %s\n", len(entries), args[0])
			return nil
		},
	}
}

func newTopologyImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Load a JSON topology file into the persisted store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("topology import: %w", err)
			}
			var entries []registry.TopologyEntry
			if err := json.Unmarshal(payload, &entries); err != nil {
				return fmt.Errorf("topology import: %w", err)
			}

			store, err := topostore.Open(cfg.TopologyDBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SaveTopology(entries); err != nil {
				return fmt.Errorf("topology import: %w", err)
			}
			fmt.Printf("imported %d device(s) from %s\n", len(entries), args[0])
			return nil
		},
	}
}
