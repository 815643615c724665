package launch

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmgr-dev/vmgr/internal/plan"
	"github.com/vmgr-dev/vmgr/internal/ports"
)

// echoRunner launches /bin/echo instead of a real hypervisor: it accepts
// any argv, exits zero immediately, and leaves no daemon behind.
func echoRunner(t *testing.T) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	r, err := newRunner(dir, "/bin/echo")
	require.NoError(t, err)
	return r, dir
}

func foregroundPlan(image string) *plan.LaunchPlan {
	return &plan.LaunchPlan{
		ImageName: image,
		Ports:     []ports.Resolved{{HostPort: 5555, VMPort: 22}},
		Daemonize: false,
	}
}

func daemonPlan(image string) *plan.LaunchPlan {
	return &plan.LaunchPlan{
		ImageName: image,
		Daemonize: true,
	}
}

func TestStartForegroundReturnsBeforeExit(t *testing.T) {
	r, _ := echoRunner(t)

	s, err := r.Start(context.Background(), foregroundPlan("fg-vm"), "/images/fg-vm.img")
	require.NoError(t, err)
	require.NotNil(t, s)

	// Start hands back a running process without waiting on it; the
	// instance is recorded until Wait reaps it.
	assert.NotZero(t, s.Instance.PID)
	recorded, err := r.store.List()
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, "fg-vm", recorded[0].ImageName)

	require.NoError(t, s.Wait())

	recorded, err = r.store.List()
	require.NoError(t, err)
	assert.Empty(t, recorded)
}

func TestLockReleasedWhileForegroundRuns(t *testing.T) {
	// The launch lock covers resolution and start only. A foreground VM
	// that has not been waited on must not keep the lock: another vmgr
	// invocation has to be able to launch while the guest runs.
	r, dir := echoRunner(t)

	var s *Started
	err := r.WithLock(context.Background(), func() error {
		var err error
		s, err = r.Start(context.Background(), foregroundPlan("long-lived"), "/images/long-lived.img")
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, s)

	other := flock.New(filepath.Join(dir, "vmgr.lock"))
	locked, err := other.TryLock()
	require.NoError(t, err)
	assert.True(t, locked, "launch lock still held after WithLock returned")
	require.NoError(t, other.Unlock())

	require.NoError(t, s.Wait())
}

func TestStartAllIsolatesFailures(t *testing.T) {
	// A daemonized echo exits without leaving a process to find, so that
	// job fails; the sibling must still start and stay untouched.
	r, _ := echoRunner(t)

	jobs := []Job{
		{Plan: daemonPlan("doomed"), ImagePath: "/images/doomed.img"},
		{Plan: foregroundPlan("survivor"), ImagePath: "/images/survivor.img"},
	}

	started, errs := r.StartAll(context.Background(), jobs)

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "doomed")

	require.Len(t, started, 1)
	assert.Equal(t, "survivor", started[0].Instance.ImageName)
	require.NoError(t, started[0].Wait())
}

func TestStartAllEmpty(t *testing.T) {
	r, _ := echoRunner(t)

	started, errs := r.StartAll(context.Background(), nil)
	assert.Empty(t, started)
	assert.Empty(t, errs)
}

func TestSessionAttrDetaches(t *testing.T) {
	assert.True(t, sessionAttr().Setsid)
}

func TestWaitDaemonizedIsNoop(t *testing.T) {
	s := &Started{Instance: &Instance{ImageName: "bg"}}
	assert.NoError(t, s.Wait())
}
