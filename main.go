package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/common/version"
	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/devttys0/botox/pauser"
)

var cfg struct {
	verbose bool
	patch   patchParams
	info    struct {
		path string
	}
	pause pauseParams
}

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(consoleOutput)
)

func main() {
	app := kingpin.New(filepath.Base(os.Args[0]), "Patch ELF executables to pause at startup, so a debugger can attach before any of their code runs.").UsageWriter(os.Stdout)
	app.Version(version.Print("botox"))
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Envar("BOTOX_VERBOSE").Default("false").BoolVar(&cfg.verbose)

	patchCmd := app.Command("patch", "Insert a pause-then-jump stub at the entry point of an executable.").Default()
	patchCmd.Arg("elf", "Executable to patch in place.").Required().StringVar(&cfg.patch.path)
	patchCmd.Flag("payload", "File holding raw machine code to use instead of the built-in stub.").Short('p').Envar("BOTOX_PAYLOAD").StringVar(&cfg.patch.payloadFile)
	patchCmd.Flag("payload-env", "Name of an environment variable holding the payload as \\x escaped hex.").StringVar(&cfg.patch.payloadEnv)
	patchCmd.Flag("output", "Write the patched executable here instead of over the original.").Short('o').StringVar(&cfg.patch.output)
	patchCmd.Flag("dry-run", "Print the patch plan without changing anything.").Short('n').BoolVar(&cfg.patch.dryRun)

	infoCmd := app.Command("info", "Print the headers of an ELF file.")
	infoCmd.Arg("elf", "ELF file to describe.").Required().StringVar(&cfg.info.path)

	pauseCmd := app.Command("pause", "Wait for a process to start and stop it with SIGSTOP.")
	pauseCmd.Arg("name", "Executable name of the process to pause.").Required().StringVar(&cfg.pause.name)
	pauseCmd.Flag("min-pid", "Only match processes with a larger pid.").Default(strconv.Itoa(os.Getpid())).IntVar(&cfg.pause.minPID)
	pauseCmd.Flag("delay", "Time to wait between spotting the process and stopping it.").Short('t').Default("0s").DurationVar(&cfg.pause.delay)
	pauseCmd.Flag("gdb", "Attach gdbserver to the stopped process.").Short('g').BoolVar(&cfg.pause.gdb)
	pauseCmd.Flag("proc", "Mount point of the proc filesystem.").Default("/proc").Hidden().StringVar(&cfg.pause.procRoot)

	parsedCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	fs := afero.NewOsFs()

	switch parsedCmd {
	case patchCmd.FullCommand():
		os.Exit(checkError(patchTarget(fs, os.Stdout, &cfg.patch)))
	case infoCmd.FullCommand():
		os.Exit(checkError(describe(fs, os.Stdout, cfg.info.path)))
	case pauseCmd.FullCommand():
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		cfg.pause.gdbServer = pauser.GDBServerFromEnv()
		err := pauseProcess(ctx, &cfg.pause)
		stop()
		os.Exit(checkError(err))
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
	}
}

func checkError(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}
