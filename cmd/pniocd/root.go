package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wtp/pnioc/internal/config"
	"github.com/wtp/pnioc/internal/wlog"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pniocd",
		Short: "PROFINET IO Controller core daemon",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML/JSON/TOML config file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newDiscoverCmd())
	root.AddCommand(newTopologyCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func newLogger(level string) wlog.Log {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return wlog.New(logger, logrus.Fields{"component": "pniocd"})
}
