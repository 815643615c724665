package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vmgr-dev/vmgr/internal/launch"
	"github.com/vmgr-dev/vmgr/internal/ports"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List running VMs",
	Long:  `List the VMs started by vmgr that are still running, with their PIDs and port forwards.`,
	RunE:  runPs,
}

func init() {
	rootCmd.AddCommand(psCmd)
}

func runPs(cmd *cobra.Command, args []string) error {
	runner, err := launch.NewRunner()
	if err != nil {
		return err
	}

	instances, err := runner.List()
	if err != nil {
		return fmt.Errorf("failed to list VMs: %w", err)
	}

	if len(instances) == 0 {
		fmt.Println("No machines running.")
		return nil
	}

	// Create tabwriter for aligned output
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tIMAGE\tPID\tPORTS\tSTARTED")
	_, _ = fmt.Fprintln(w, "--\t-----\t---\t-----\t-------")

	for _, inst := range instances {
		started := inst.StartedAt.Local().Format("2006-01-02 15:04:05")
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			shortID(inst.ID),
			inst.ImageName,
			inst.PID,
			formatForwards(inst.Ports),
			started,
		)
	}

	_ = w.Flush()
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatForwards(resolved []ports.Resolved) string {
	if len(resolved) == 0 {
		return "-"
	}
	parts := make([]string, len(resolved))
	for i, r := range resolved {
		parts[i] = fmt.Sprintf("%d->%d", r.HostPort, r.VMPort)
	}
	return strings.Join(parts, ",")
}
