package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vmgr-dev/vmgr/internal/images"
	"github.com/vmgr-dev/vmgr/internal/launch"
	"github.com/vmgr-dev/vmgr/internal/plan"
	"github.com/vmgr-dev/vmgr/internal/ports"
)

var planCmd = &cobra.Command{
	Use:   "plan [image]",
	Short: "Show resolved launch plans without starting anything",
	Long: `Resolve the configured VMs and print the qemu-system command line and
the host port bindings each one would get, without launching.

Port choices are re-resolved from the current host state, so successive
runs can differ as ports come and go.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lib, err := images.New(cfg.BaseImagesDirectory)
	if err != nil {
		return err
	}

	builder := plan.NewBuilder()

	var result *plan.Result
	if len(args) == 1 {
		vm := cfg.FindVM(args[0])
		if vm == nil {
			return fmt.Errorf("no VM declared with image name matching %q", args[0])
		}
		result = &plan.Result{}
		p, err := builder.Build(cfg, vm, ports.NewClaimed())
		if err != nil {
			result.Failures = append(result.Failures, plan.VMFailure{ImageName: vm.ImageName, Err: err})
		} else {
			result.Plans = append(result.Plans, p)
		}
	} else {
		if len(cfg.VMs) == 0 {
			return fmt.Errorf("no VMs declared in the config file")
		}
		result = builder.BuildAll(cfg)
	}

	total := len(result.Plans) + len(result.Failures)

	for i, p := range result.Plans {
		if i > 0 {
			fmt.Println()
		}
		entry, err := lib.Resolve(p.ImageName)
		if err != nil {
			result.Failures = append(result.Failures, plan.VMFailure{ImageName: p.ImageName, Err: err})
			continue
		}
		fmt.Printf("%s:\n", p.ImageName)
		fmt.Printf("  command: %s\n", strings.Join(launch.Command(p, entry.Path), " "))
		for _, line := range p.Bindings() {
			fmt.Printf("  forward: %s\n", line)
		}
	}

	for _, f := range result.Failures {
		fmt.Fprintf(os.Stderr, "failed: %v\n", f)
	}
	if len(result.Failures) > 0 {
		return fmt.Errorf("%d of %d VMs failed to resolve", len(result.Failures), total)
	}
	return nil
}
