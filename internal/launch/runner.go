package launch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vmgr-dev/vmgr/internal/config"
	"github.com/vmgr-dev/vmgr/internal/plan"
)

const lockRetryDelay = 100 * time.Millisecond

// Runner starts, lists and stops hypervisor processes. A file lock under
// the config directory serializes launches across concurrent vmgr
// invocations, so the no-duplicate-port guarantee holds between processes
// as well as within one run.
type Runner struct {
	store  *Store
	lock   *flock.Flock
	log    *logrus.Entry
	binary string
}

// NewRunner creates a Runner persisting instance records under the vmgr
// config directory.
func NewRunner() (*Runner, error) {
	dir, err := config.EnsureDir()
	if err != nil {
		return nil, fmt.Errorf("prepare config directory: %w", err)
	}
	return newRunner(dir, QemuBinary)
}

func newRunner(dir, binary string) (*Runner, error) {
	store, err := NewStore(filepath.Join(dir, "instances"))
	if err != nil {
		return nil, err
	}
	return &Runner{
		store:  store,
		lock:   flock.New(filepath.Join(dir, "vmgr.lock")),
		log:    logrus.WithField("component", "launch"),
		binary: binary,
	}, nil
}

// WithLock runs fn while holding the cross-process launch lock. Port
// resolution and process start must both happen inside fn, otherwise a
// concurrent vmgr could claim a port between the probe and the bind.
// Nothing that outlives the start belongs inside fn: waiting on a
// foreground VM there would hold the lock for the guest's lifetime and
// starve every other vmgr invocation.
func (r *Runner) WithLock(ctx context.Context, fn func() error) error {
	locked, err := r.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire launch lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("launch lock is held by another vmgr process")
	}
	defer func() { _ = r.lock.Unlock() }()
	return fn()
}

// Job pairs a resolved plan with the image file it boots from.
type Job struct {
	Plan      *plan.LaunchPlan
	ImagePath string
}

// Started is a launched hypervisor. Foreground VMs hold the process
// handle so the caller can block on them after the launch lock is
// released; daemonized VMs carry no handle and Wait returns immediately.
type Started struct {
	Instance *Instance
	runner   *Runner
	cmd      *exec.Cmd
}

// Wait blocks until a foreground VM exits, then drops its instance
// record. For daemonized VMs it is a no-op.
func (s *Started) Wait() error {
	if s.cmd == nil {
		return nil
	}
	err := s.cmd.Wait()
	_ = s.runner.store.Remove(s.Instance.ID)
	if err != nil {
		return fmt.Errorf("%s exited: %w", s.Instance.ImageName, err)
	}
	return nil
}

// Start launches one resolved plan and returns as soon as the process is
// up: daemonized VMs once the daemonizing parent has exited, foreground
// VMs once the process is spawned. Blocking on a foreground guest is the
// caller's job, via Started.Wait, outside the launch lock.
func (r *Runner) Start(ctx context.Context, p *plan.LaunchPlan, imagePath string) (*Started, error) {
	argv := Command(p, imagePath)
	log := r.log.WithFields(logrus.Fields{"image": p.ImageName, "daemonize": p.Daemonize})
	log.WithField("argv", strings.Join(argv, " ")).Debug("starting hypervisor")

	inst := &Instance{
		ID:        uuid.NewString(),
		ImageName: p.ImageName,
		ImagePath: imagePath,
		Ports:     p.Ports,
		Daemonize: p.Daemonize,
		StartedAt: time.Now().UTC(),
	}

	cmd := exec.CommandContext(ctx, r.binary, argv[1:]...)

	if p.Daemonize {
		// Detach from the caller's session so the daemon survives the
		// terminal, then wait for the daemonizing parent to exit and
		// find the real process by command line.
		cmd.SysProcAttr = sessionAttr()
		out, err := cmd.CombinedOutput()
		if err != nil {
			return nil, fmt.Errorf("start %s: %w: %s", p.ImageName, err, strings.TrimSpace(string(out)))
		}
		pid, err := r.findPID("file=" + imagePath)
		if err != nil {
			return nil, fmt.Errorf("locate daemonized hypervisor: %w", err)
		}
		inst.PID = pid
		if err := r.store.Save(inst); err != nil {
			log.WithError(err).Warn("could not record instance")
		}
		log.WithField("pid", inst.PID).Info("hypervisor started")
		return &Started{Instance: inst, runner: r}, nil
	}

	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", p.ImageName, err)
	}
	inst.PID = int32(cmd.Process.Pid)
	if err := r.store.Save(inst); err != nil {
		log.WithError(err).Warn("could not record instance")
	}
	log.WithField("pid", inst.PID).Info("hypervisor started")

	return &Started{Instance: inst, runner: r, cmd: cmd}, nil
}

// StartAll launches every job concurrently and collects per-job errors.
// Every job is attempted: one VM failing to start neither stops nor
// cancels its siblings, so the commands deliberately share the caller's
// context rather than a cancel-on-first-error one.
func (r *Runner) StartAll(ctx context.Context, jobs []Job) ([]*Started, []error) {
	var (
		mu      sync.Mutex
		g       errgroup.Group
		started []*Started
		errs    []error
	)

	for _, j := range jobs {
		g.Go(func() error {
			s, err := r.Start(ctx, j.Plan, j.ImagePath)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			started = append(started, s)
			return nil
		})
	}
	_ = g.Wait()
	return started, errs
}

// List returns the instances that are still alive, pruning records whose
// process has gone away.
func (r *Runner) List() ([]*Instance, error) {
	recorded, err := r.store.List()
	if err != nil {
		return nil, err
	}

	var live []*Instance
	for _, inst := range recorded {
		if r.isAlive(inst.PID) {
			live = append(live, inst)
			continue
		}
		_ = r.store.Remove(inst.ID)
	}
	return live, nil
}

// Stop terminates the running VM whose image name contains fragment.
func (r *Runner) Stop(fragment string) (*Instance, error) {
	live, err := r.List()
	if err != nil {
		return nil, err
	}
	if len(live) == 0 {
		return nil, fmt.Errorf("no VMs running")
	}

	for _, inst := range live {
		if !strings.Contains(inst.ImageName, fragment) {
			continue
		}
		proc, err := process.NewProcess(inst.PID)
		if err != nil {
			return nil, fmt.Errorf("find process %d for %s: %w", inst.PID, inst.ImageName, err)
		}
		if err := proc.Terminate(); err != nil {
			return nil, fmt.Errorf("stop %s (pid %d): %w", inst.ImageName, inst.PID, err)
		}
		_ = r.store.Remove(inst.ID)
		r.log.WithFields(logrus.Fields{"image": inst.ImageName, "pid": inst.PID}).Info("hypervisor stopped")
		return inst, nil
	}
	return nil, fmt.Errorf("no running VM with image name matching %q", fragment)
}

// sessionAttr puts a daemonized VM in its own session, detached from the
// controlling terminal.
func sessionAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

func (r *Runner) isAlive(pid int32) bool {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return false
	}
	cmdline, err := proc.Cmdline()
	if err != nil {
		return false
	}
	return strings.Contains(cmdline, r.binary)
}

func (r *Runner) findPID(fragment string) (int32, error) {
	procs, err := process.Processes()
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}
	for _, proc := range procs {
		cmdline, err := proc.Cmdline()
		if err != nil {
			continue
		}
		if strings.Contains(cmdline, r.binary) && strings.Contains(cmdline, fragment) {
			return proc.Pid, nil
		}
	}
	return 0, fmt.Errorf("no %s process matching %q", r.binary, fragment)
}
