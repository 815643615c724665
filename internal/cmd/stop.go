package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vmgr-dev/vmgr/internal/launch"
)

var stopCmd = &cobra.Command{
	Use:   "stop <image>",
	Short: "Stop a running VM",
	Long: `Stop the running VM whose image name contains the given fragment.

Example:
  vmgr stop ubuntu`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	runner, err := launch.NewRunner()
	if err != nil {
		return err
	}

	inst, err := runner.Stop(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Stopped %s (pid %d).\n", inst.ImageName, inst.PID)
	return nil
}
