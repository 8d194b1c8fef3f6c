package cmds

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/go-delve/hwbreak/pkg/config"
	"github.com/go-delve/hwbreak/pkg/disasm"
	"github.com/go-delve/hwbreak/pkg/logflags"
	"github.com/go-delve/hwbreak/pkg/proc/native"
	"github.com/go-delve/hwbreak/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// configFile overrides the default configuration file.
	configFile string
	// workingDir is the working directory for running the program.
	workingDir string

	// breakSlot and breakAddr select the hardware breakpoint.
	breakSlot string
	breakAddr string
	// hits is the number of hits reported before detaching.
	hits int
	// stepAfterHit is the number of instructions stepped after each hit.
	stepAfterHit int
	// flavour is the disassembly syntax.
	flavour string
	// kill terminates the target when hwbreak detaches.
	kill bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command
)

const hwbreakCommandLongDesc = `hwbreak sets x86-64 hardware execution breakpoints on a traced process.

The breakpoint address is written into one of the four debug address
registers (DR0-DR3) and enabled in DR7. Only one slot is enabled at a
time: setting a breakpoint disables the other slots.

Pass flags to the program you are tracing using ` + "`--`" + `, for example:

` + "`hwbreak exec --addr 0x401000 ./hello -- -v`"

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand = &cobra.Command{
		Use:           "hwbreak",
		Short:         "hwbreak sets hardware breakpoints on a traced process.",
		Long:          hwbreakCommandLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debugging logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output (hwbreak, ptrace)")
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor.")
	rootCommand.PersistentFlags().StringVarP(&configFile, "config", "", "", "Configuration file, defaults to $XDG_CONFIG_HOME/hwbreak/config.yml or ~/.hwbreak/config.yml.")
	rootCommand.PersistentFlags().StringVarP(&breakSlot, "slot", "s", "", "Debug register slot of the breakpoint (0-3).")
	rootCommand.PersistentFlags().StringVarP(&breakAddr, "addr", "a", "", "Virtual address of the breakpoint.")
	rootCommand.PersistentFlags().IntVarP(&hits, "hits", "n", -1, "Number of hits reported before detaching, 0 runs until the target exits.")
	rootCommand.PersistentFlags().IntVarP(&stepAfterHit, "step", "", -1, "Number of instructions single stepped after each hit.")
	rootCommand.PersistentFlags().StringVarP(&flavour, "flavour", "", "", "Disassembly syntax: intel, gnu or go.")
	rootCommand.PersistentFlags().BoolVarP(&kill, "kill", "", false, "Kill the target when detaching.")

	execCommand := &cobra.Command{
		Use:   "exec [path/to/binary] [-- args]",
		Short: "Execute a binary with a hardware breakpoint set.",
		Long: `Execute a binary stopped at its first instruction, set the hardware breakpoint
and resume it, reporting every hit.

If no binary is given the 'target' command line of the configuration file is used.`,
		RunE: execCmd,
	}
	execCommand.Flags().StringVar(&workingDir, "wd", "", "Working directory for running the program.")
	rootCommand.AddCommand(execCommand)

	attachCommand := &cobra.Command{
		Use:   "attach pid",
		Short: "Attach to a running process and set a hardware breakpoint.",
		Args:  cobra.ExactArgs(1),
		RunE:  attachCmd,
	}
	rootCommand.AddCommand(attachCommand)

	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hwbreak\n%s\n", version.HWBreakVersion)
			if log {
				fmt.Printf("%s\n", version.BuildInfo())
			}
		},
	}
	rootCommand.AddCommand(versionCommand)

	return rootCommand
}

func execCmd(cmd *cobra.Command, args []string) error {
	return execute(0, args)
}

func attachCmd(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid pid: %s", args[0])
	}
	return execute(pid, nil)
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadConfigFile(configFile)
	}
	return config.LoadConfig(), nil
}

// sessionConfigFrom merges command line flags over the configuration file.
func sessionConfigFrom(conf *config.Config) (sessionConfig, error) {
	var sc sessionConfig

	var bp config.Breakpoint
	if conf.Breakpoint != nil {
		bp = *conf.Breakpoint
	}
	if breakSlot != "" {
		bp.Slot = breakSlot
	}
	if breakAddr != "" {
		bp.Addr = breakAddr
	}
	if bp.Slot == "" {
		bp.Slot = "0"
	}
	if bp.Addr != "" {
		var err error
		sc.slot, sc.addr, err = bp.Parse()
		if err != nil {
			return sc, err
		}
		sc.hasBP = true
	}

	sc.hits = conf.Hits
	if hits >= 0 {
		sc.hits = hits
	}
	sc.steps = conf.StepAfterHit
	if stepAfterHit >= 0 {
		sc.steps = stepAfterHit
	}

	fl := conf.DisassembleFlavour
	if flavour != "" {
		fl = flavour
	}
	var err error
	sc.flavour, err = disasm.ParseFlavour(fl)
	return sc, err
}

func execute(attachPid int, processArgs []string) error {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		return err
	}
	defer logflags.Close()

	conf, err := loadConfig()
	if err != nil {
		return err
	}
	sc, err := sessionConfigFrom(conf)
	if err != nil {
		return err
	}
	if !sc.hasBP {
		return errors.New("no breakpoint address, use --addr or the 'breakpoint' configuration option")
	}

	var p *native.Process
	if attachPid == 0 {
		if len(processArgs) == 0 {
			processArgs, err = conf.TargetArgs()
			if err != nil {
				return err
			}
		}
		if len(processArgs) == 0 {
			return errors.New("you must provide a path to a binary")
		}
		p, err = native.Launch(processArgs, workingDir)
	} else {
		p, err = native.Attach(attachPid)
	}
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if isatty.IsTerminal(os.Stdout.Fd()) {
		out = colorable.NewColorableStdout()
		sc.color = true
	}

	s := newSession(p, sc, out)
	exited, err := s.run()
	if exited {
		return err
	}
	if derr := s.detach(kill); err == nil {
		err = derr
	}
	return err
}
