package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vmgr-dev/vmgr/internal/config"
	"github.com/vmgr-dev/vmgr/internal/images"
	"github.com/vmgr-dev/vmgr/internal/launch"
	"github.com/vmgr-dev/vmgr/internal/option"
	"github.com/vmgr-dev/vmgr/internal/plan"
	"github.com/vmgr-dev/vmgr/internal/ports"
)

// Fallback forwards for images without a declared VM profile.
const (
	defaultSSHPort   = 5555
	defaultHTTPSPort = 8081
)

var (
	startAll        bool
	startForeground bool
	startSSHPort    int
	startHTTPSPort  int
)

var startCmd = &cobra.Command{
	Use:   "start [image]",
	Short: "Resolve and launch a VM",
	Long: `Resolve a VM's launch profile and start it.

The image argument is a unique substring of a name shown by 'vmgr images'.
If the config file declares a VM for that image, its profile is used;
otherwise a default profile forwards host ports to guest 22 and 443.

Examples:
  vmgr start ubuntu
  vmgr start ubuntu --foreground
  vmgr start debian -p 2222
  vmgr start --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startAll, "all", false, "start every VM declared in the config file")
	startCmd.Flags().BoolVarP(&startForeground, "foreground", "f", false, "run in foreground (default is to daemonize)")
	startCmd.Flags().IntVarP(&startSSHPort, "ssh-port", "p", 0, "host port to forward to guest port 22 (exact port, fails if taken)")
	startCmd.Flags().IntVarP(&startHTTPSPort, "https-port", "s", 0, "host port to forward to guest port 443 (exact port, fails if taken)")

	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lib, err := images.New(cfg.BaseImagesDirectory)
	if err != nil {
		return err
	}

	runner, err := launch.NewRunner()
	if err != nil {
		return err
	}

	builder := plan.NewBuilder()
	ctx := cmd.Context()

	if startAll {
		if len(args) > 0 {
			return fmt.Errorf("--all does not take an image argument")
		}
		return startAllVMs(cmd, cfg, lib, builder, runner)
	}

	if len(args) == 0 {
		return fmt.Errorf("no image provided: give an image name or use --all")
	}

	entry, err := lib.Resolve(args[0])
	if err != nil {
		return err
	}

	vm := profileFor(cfg, args[0], entry.Name)
	if startForeground {
		vm.Daemonize = false
	}

	// The lock covers resolution through process start only; waiting on a
	// foreground guest happens after it is released, so other vmgr
	// invocations can launch while this VM runs.
	var started *launch.Started
	err = runner.WithLock(ctx, func() error {
		p, err := builder.Build(cfg, vm, ports.NewClaimed())
		if err != nil {
			return fmt.Errorf("resolve %s: %w", vm.ImageName, err)
		}
		for _, line := range p.Bindings() {
			fmt.Println(line)
		}
		started, err = runner.Start(ctx, p, entry.Path)
		return err
	})
	if err != nil {
		return err
	}
	return started.Wait()
}

func startAllVMs(cmd *cobra.Command, cfg *config.Config, lib *images.Library, builder *plan.Builder, runner *launch.Runner) error {
	if len(cfg.VMs) == 0 {
		return fmt.Errorf("no VMs declared in the config file")
	}

	var (
		started []*launch.Started
		failed  int
	)

	err := runner.WithLock(cmd.Context(), func() error {
		result := builder.BuildAll(cfg)
		for _, f := range result.Failures {
			fmt.Fprintf(os.Stderr, "failed: %v\n", f)
		}
		failed = len(result.Failures)

		var jobs []launch.Job
		for _, p := range result.Plans {
			entry, err := lib.Resolve(p.ImageName)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed: %s: %v\n", p.ImageName, err)
				failed++
				continue
			}
			fmt.Printf("%s:\n", p.ImageName)
			for _, line := range p.Bindings() {
				fmt.Printf("  %s\n", line)
			}
			jobs = append(jobs, launch.Job{Plan: p, ImagePath: entry.Path})
		}

		var errs []error
		started, errs = runner.StartAll(cmd.Context(), jobs)
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "failed: %v\n", e)
		}
		failed += len(errs)
		return nil
	})
	if err != nil {
		return err
	}

	// Foreground VMs keep running once the lock is released; block on
	// them here so the terminal stays attached until they exit.
	for _, s := range started {
		if werr := s.Wait(); werr != nil {
			fmt.Fprintf(os.Stderr, "failed: %v\n", werr)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d VMs failed", failed, len(cfg.VMs))
	}
	return nil
}

// profileFor returns the declared VM profile matching the requested name,
// or a default profile forwarding SSH and HTTPS when the config has none.
// A port given on the command line is an explicit mapping: if it is taken
// the start fails instead of sliding to another port.
func profileFor(cfg *config.Config, requested, imageName string) *config.VM {
	if found := cfg.FindVM(requested); found != nil {
		vm := *found
		return &vm
	}

	sshPort, sshExplicit := defaultSSHPort, false
	if startSSHPort != 0 {
		sshPort, sshExplicit = startSSHPort, true
	}
	httpsPort, httpsExplicit := defaultHTTPSPort, false
	if startHTTPSPort != 0 {
		httpsPort, httpsExplicit = startHTTPSPort, true
	}

	return &config.VM{
		ImageName: imageName,
		PortMappings: []ports.Mapping{
			{HostPort: sshPort, VMPort: 22, Explicit: sshExplicit},
			{HostPort: httpsPort, VMPort: 443, Explicit: httpsExplicit},
		},
		Options: []option.Option{
			option.New("-m 8G"),
			option.New("-smp 4"),
			option.New("-accel kvm"),
			option.New("-accel tcg"),
			option.New("-cpu host"),
			option.New("-vnc none"),
			option.New("-nic user,model=virtio"),
		},
		UseGlobalOptions: false,
		Daemonize:        true,
	}
}
