//go:build linux

package pauser

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// Pauser finds processes through a procfs mount and stops them.
type Pauser struct {
	fs     procfs.FS
	logger log.Logger

	kill func(pid int, sig unix.Signal) error
	run  func(ctx context.Context, argv []string) error
}

// New returns a Pauser reading the proc filesystem mounted at procRoot.
func New(procRoot string, logger log.Logger) (*Pauser, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", procRoot)
	}
	return &Pauser{
		fs:     fs,
		logger: logger,
		kill:   unix.Kill,
		run:    runCommand,
	}, nil
}

func runCommand(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Find returns the pid of the first process above minPID whose executable
// matches name.
func (p *Pauser) Find(name string, minPID int) (int, bool, error) {
	procs, err := p.fs.AllProcs()
	if err != nil {
		return 0, false, errors.Wrap(err, "listing processes")
	}
	for _, proc := range procs {
		if proc.PID <= minPID {
			continue
		}
		exe, err := proc.Executable()
		if err != nil {
			// gone already, or not ours to look at
			continue
		}
		if matches(exe, name) {
			return proc.PID, true, nil
		}
	}
	return 0, false, nil
}

// Wait polls until a matching process appears or ctx is done.
func (p *Pauser) Wait(ctx context.Context, name string, minPID int, poll time.Duration) (int, error) {
	if poll <= 0 {
		poll = DefaultPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		pid, ok, err := p.Find(name, minPID)
		if err != nil {
			return 0, err
		}
		if ok {
			return pid, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Pause waits for name to start, stops it with SIGSTOP and, if asked,
// attaches gdbserver to it. It returns the stopped pid.
func (p *Pauser) Pause(ctx context.Context, name string, cfg Config) (int, error) {
	level.Info(p.logger).Log("msg", "waiting for process", "name", name, "min_pid", cfg.MinPID)
	pid, err := p.Wait(ctx, name, cfg.MinPID, cfg.Poll)
	if err != nil {
		return 0, err
	}

	if err := sleep(ctx, cfg.Delay); err != nil {
		return 0, err
	}

	if err := p.kill(pid, unix.SIGSTOP); err != nil {
		return 0, errors.Wrapf(err, "stopping pid %d", pid)
	}
	level.Info(p.logger).Log("msg", "process paused", "name", name, "pid", pid)

	if !cfg.GDB {
		return pid, nil
	}
	argv := cfg.GDBServer.Argv(pid)
	level.Info(p.logger).Log("msg", "starting debugger", "cmd", strings.Join(argv, " "))
	if err := p.run(ctx, argv); err != nil {
		return pid, errors.Wrapf(err, "running %s", argv[0])
	}
	if err := sleep(ctx, cfg.GDBServer.Delay); err != nil {
		return pid, err
	}
	return pid, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
