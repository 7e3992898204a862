package process_test

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/kbukum/cmdkit/process"
	"github.com/kbukum/cmdkit/signals"
)

func testRegistry(exitCode *int) *signals.Registry {
	return signals.NewRegistry(signals.WithoutOSNotify(), signals.WithExitFunc(func(code int) {
		*exitCode = code
	}))
}

func TestSignalWithoutChildIsNoop(t *testing.T) {
	cmd := newCommand(t, "true")
	if cmd.Running() {
		t.Fatal("no child should be running")
	}
	if err := cmd.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("expected no error without a child, got %v", err)
	}
}

func TestForwardingWithoutChildIsNoop(t *testing.T) {
	exitCode := -1
	reg := testRegistry(&exitCode)
	cmd := newCommand(t, "true", process.WithSignalRegistry(reg))

	r := cmd.EnableSignalForwarding(syscall.SIGTERM)
	defer r.Revert()

	reg.Deliver(syscall.SIGTERM)
	if exitCode != 143 {
		t.Errorf("expected the default SIGTERM disposition to exit with 143, got %d", exitCode)
	}
}

func TestForwardingAfterChildExitIsNoop(t *testing.T) {
	exitCode := -1
	reg := testRegistry(&exitCode)
	cmd := newCommand(t, "true", process.WithSignalRegistry(reg))
	r := cmd.EnableSignalForwarding(syscall.SIGUSR1)
	defer r.Revert()

	if _, err := cmd.Execute(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reg.Deliver(syscall.SIGUSR1)
	if exitCode != -1 {
		t.Errorf("SIGUSR1 must not exit the controller, got %d", exitCode)
	}
}

func TestForwardingToLiveChild(t *testing.T) {
	exitCode := -1
	reg := testRegistry(&exitCode)

	chained := make(chan os.Signal, 1)
	reg.Subscribe(syscall.SIGUSR1, signals.HandlerFunc(func(sig os.Signal) { chained <- sig }))

	ready := process.LineHandlerFunc(func(line string) {
		if line == "ready" {
			go reg.Deliver(syscall.SIGUSR1)
		}
	})
	out := &process.Collector{}
	cmd := shell(t, `trap 'echo got; exit 7' USR1; echo ready; while :; do sleep 0.05; done`,
		process.WithSignalRegistry(reg),
		process.WithOutHandler(process.MultiHandler(out, ready)))

	r := cmd.EnableSignalForwarding(syscall.SIGUSR1)
	defer r.Revert()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	code, err := cmd.Execute(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != 7 {
		t.Errorf("expected the child's trap to exit 7, got %d", code)
	}
	if out.String() != "ready\ngot\n" {
		t.Errorf("unexpected output %q", out.String())
	}

	select {
	case <-chained:
	case <-time.After(5 * time.Second):
		t.Error("expected the previous handler to run after forwarding")
	}
}

func TestRevertStopsForwarding(t *testing.T) {
	exitCode := -1
	reg := testRegistry(&exitCode)
	cmd := newCommand(t, "true", process.WithSignalRegistry(reg))

	r := cmd.EnableSignalForwarding(syscall.SIGHUP)
	if reg.Len(syscall.SIGHUP) != 1 {
		t.Fatalf("expected one subscription, got %d", reg.Len(syscall.SIGHUP))
	}
	r.Revert()
	if reg.Len(syscall.SIGHUP) != 0 {
		t.Errorf("expected no subscription after revert, got %d", reg.Len(syscall.SIGHUP))
	}
}
