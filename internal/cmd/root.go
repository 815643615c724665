package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vmgr-dev/vmgr/internal/config"
)

var (
	cfgFile string
	debug   bool
)

// Debug prints a message if debug mode is enabled
func Debug(format string, args ...interface{}) {
	if debug {
		fmt.Printf("[DEBUG] "+format+"\n", args...)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vmgr",
	Short: "vmgr - declarative QEMU virtual machines",
	Long: `vmgr resolves declarative VM launch profiles into qemu-system
invocations: it merges global and per-VM options, decides real host ports
for the declared forwards, and starts or stops the machines.

Start a VM:
  vmgr start ubuntu
  vmgr start --all

Inspect:
  vmgr plan
  vmgr ps
  vmgr images`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging)

	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.vmgr/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initLogging() {
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	Debug("Config loaded: %d VMs, %d global options", len(cfg.VMs), len(cfg.GlobalOptions))
	return cfg, nil
}
