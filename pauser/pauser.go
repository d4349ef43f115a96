// Package pauser stops a process as soon as it shows up, so a debugger can be
// attached before it gets anywhere. It complements the patcher for programs
// that cannot be modified on disk.
package pauser

import (
	"strconv"
	"strings"
	"time"

	"github.com/xyproto/env/v2"
)

// Environment variables read by GDBServerFromEnv.
const (
	EnvGDBServer      = "BOTOX_GDBSERVER"
	EnvGDBServerArgs  = "BOTOX_GDBSERVER_ARGS"
	EnvGDBServerPIDOp = "BOTOX_GDBSERVER_PIDOPT"
	EnvGDBServerDelay = "BOTOX_GDBSERVER_DELAY"
)

// DefaultPoll is how often /proc is rescanned while waiting for the target.
const DefaultPoll = 10 * time.Millisecond

// Config controls a single Pause call.
type Config struct {
	// MinPID only matches processes with a larger pid. Set it to the pauser's
	// own pid to skip anything that was already running.
	MinPID int
	// Delay is waited between spotting the process and stopping it.
	Delay time.Duration
	Poll  time.Duration

	// GDB launches GDBServer attached to the stopped process.
	GDB       bool
	GDBServer GDBServer
}

// GDBServer describes the debugger launched against a paused process.
type GDBServer struct {
	Path   string
	Args   string
	PIDOpt string
	// Delay is slept after the server exits.
	Delay time.Duration
}

// GDBServerFromEnv returns the gdbserver settings, defaulting to
// "gdbserver 0.0.0.0:1234 --attach <pid>".
func GDBServerFromEnv() GDBServer {
	return GDBServer{
		Path:   env.Str(EnvGDBServer, "gdbserver"),
		Args:   env.Str(EnvGDBServerArgs, "0.0.0.0:1234"),
		PIDOpt: env.Str(EnvGDBServerPIDOp, "--attach"),
		Delay:  time.Duration(env.Int(EnvGDBServerDelay, 0)) * time.Second,
	}
}

// Argv returns the command line that attaches the server to pid.
func (g GDBServer) Argv(pid int) []string {
	argv := append([]string{g.Path}, strings.Fields(g.Args)...)
	if opt := strings.TrimSpace(g.PIDOpt); opt != "" {
		argv = append(argv, strings.Fields(opt)...)
		argv = append(argv, strconv.Itoa(pid))
	}
	return argv
}

// matches reports whether exe names the target. Like pidof, only the base
// name is compared, and a prefix is enough.
func matches(exe, name string) bool {
	if i := strings.LastIndexByte(exe, '/'); i >= 0 {
		exe = exe[i+1:]
	}
	return name != "" && strings.HasPrefix(exe, name)
}
