package cmds

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-delve/gdblaunch/pkg/config"
	"github.com/go-delve/gdblaunch/pkg/gdbmacros"
	"github.com/go-delve/gdblaunch/pkg/launch"
	"github.com/go-delve/gdblaunch/pkg/logflags"
	"github.com/go-delve/gdblaunch/pkg/monitor"
	"github.com/go-delve/gdblaunch/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string

	// debuggerPath is the debugger to launch, overrides the config file.
	debuggerPath string
	// serveFiles lets gdb fetch binaries through the remote protocol.
	serveFiles bool

	// paramsFd is the read end of the parameter pipe for 'launch' and the
	// write end for 'send-params'.
	paramsFd int

	host string
	port uint16

	// workingDir is the working directory of the monitored command.
	workingDir string

	conf *config.Config
)

const gdblaunchCommandLongDesc = `gdblaunch attaches gdb to a replay session.

It writes the replay command script loaded by gdb, waits for the replay
server to publish its address and then becomes gdb, connected to the server.

Pass options to gdb using ` + "`--`" + `, for example:

` + "`gdblaunch launch --params-fd 3 -- -ex 'break main' -ex continue`"

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	rootCommand := &cobra.Command{
		Use:           "gdblaunch",
		Short:         "gdblaunch attaches gdb to replay sessions.",
		Long:          gdblaunchCommandLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	addLogFlags(rootCommand.PersistentFlags())

	// 'launch' subcommand.
	launchCommand := &cobra.Command{
		Use:   "launch [-- gdb options]",
		Short: "Wait for connection parameters and exec gdb.",
		Long: `Wait for connection parameters on a pipe and exec gdb.

The replay server writes one connection record to the pipe once it is
listening. gdblaunch then replaces itself with gdb, connected to the server.
If the pipe is closed without a record gdblaunch exits successfully without
running gdb.

An "-ex continue" pair among the gdb options makes gdb connect right before
it, so that breakpoints set by earlier options apply.
`,
		RunE: launchCmd,
	}
	launchCommand.Flags().IntVar(&paramsFd, "params-fd", -1, "File descriptor to read connection parameters from.")
	addDebuggerFlags(launchCommand.Flags())
	rootCommand.AddCommand(launchCommand)

	// 'command' subcommand.
	commandCommand := &cobra.Command{
		Use:   "command <path/to/binary>",
		Short: "Print the command to attach gdb to a server.",
		Args:  cobra.ExactArgs(1),
		RunE:  commandCmd,
	}
	addDebuggerFlags(commandCommand.Flags())
	addAddressFlags(commandCommand.Flags())
	rootCommand.AddCommand(commandCommand)

	// 'send-params' subcommand.
	sendParamsCommand := &cobra.Command{
		Use:   "send-params <path/to/binary>",
		Short: "Write a connection record to a parameter pipe.",
		Long: `Write a connection record to a parameter pipe.

This is the server side of 'gdblaunch launch', for servers that are not
written in Go or for testing.`,
		Args: cobra.ExactArgs(1),
		RunE: sendParamsCmd,
	}
	sendParamsCommand.Flags().IntVar(&paramsFd, "params-fd", -1, "File descriptor to write connection parameters to.")
	addAddressFlags(sendParamsCommand.Flags())
	rootCommand.AddCommand(sendParamsCommand)

	// 'macros' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "macros",
		Short: "Print the gdb command script.",
		Long: `Print the gdb command script.

The output can be sourced from a gdbinit file to get the replay commands in
a gdb started by other means.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := newLibrary()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), lib.Compute())
			return nil
		},
	})

	// 'monitor' subcommand.
	monitorCommand := &cobra.Command{
		Use:   "monitor -- <command> [args]",
		Short: "Run a command and attach gdb when it opens an emergency session.",
		Long: `Run a command and attach gdb when it opens an emergency session.

The command is run with ` + launch.MonitorPidEnv + ` set to the pid of gdblaunch.
When it hits a fatal error it writes the attach command to ` + launch.MonitorCmdFile + `
in its working directory and sends SIGURG; gdblaunch then runs that command.`,
		Args: cobra.MinimumNArgs(1),
		RunE: monitorCmd,
	}
	monitorCommand.Flags().StringVar(&workingDir, "wd", ".", "Working directory for running the command.")
	rootCommand.AddCommand(monitorCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gdblaunch\n%s\n", version.GdbLaunchVersion)
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				fmt.Fprintln(cmd.OutOrStdout(), version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolP("verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	launcher	Log command file, argument assembly and exec
	params		Log connection records read from the parameter pipe
	emergency	Log the emergency attach path
	monitor		Log the monitor

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func addLogFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&log, "log", "", false, "Enable logging.")
	fs.StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'gdblaunch help log')`)
	fs.StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'gdblaunch help log').")
}

func addDebuggerFlags(fs *pflag.FlagSet) {
	fs.StringVar(&debuggerPath, "debugger", "", "Debugger to launch (default from the config file, or gdb).")
	fs.BoolVar(&serveFiles, "serve-files", false, "Let gdb fetch binaries through the remote protocol.")
}

func addAddressFlags(fs *pflag.FlagSet) {
	fs.StringVar(&host, "host", "127.0.0.1", "Address the server listens on.")
	fs.Uint16Var(&port, "port", 0, "Port the server listens on.")
}

// newLibrary returns the built-in extension commands followed by the ones
// listed in the config file.
func newLibrary() (*gdbmacros.Library, error) {
	lib := gdbmacros.NewLibrary(gdbmacros.DefaultCommands()...)
	for _, c := range conf.Commands {
		err := lib.Register(gdbmacros.Command{Name: c.Name, AutoArgs: c.AutoArgs, Docs: c.Docs})
		if err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}
	return lib, nil
}

func resolveDebugger() string {
	if debuggerPath != "" {
		return debuggerPath
	}
	return conf.DebuggerPath()
}

// resolveServeFiles lets an explicit --serve-files, true or false, override
// the config file.
func resolveServeFiles(cmd *cobra.Command) bool {
	if cmd.Flags().Changed("serve-files") {
		return serveFiles
	}
	return conf.ServeFiles
}

func launchCmd(cmd *cobra.Command, args []string) error {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		return err
	}
	defer logflags.Close()

	if paramsFd < 0 {
		return errors.New("you must provide --params-fd")
	}
	options := append(append([]string{}, conf.GdbOptions...), args...)

	lib, err := newLibrary()
	if err != nil {
		return err
	}
	l := launch.New(lib)
	l.LaunchDebugger(paramsFd, resolveDebugger(), options, resolveServeFiles(cmd))
	return nil
}

func commandCmd(cmd *cobra.Command, args []string) error {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		return err
	}
	defer logflags.Close()

	if port == 0 {
		return errors.New("you must provide --port")
	}
	exe, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	lib, err := newLibrary()
	if err != nil {
		return err
	}
	l := launch.New(lib)
	l.LaunchCommand(exe, host, port, resolveServeFiles(cmd), resolveDebugger())
	fmt.Fprintln(cmd.OutOrStdout(), l.SavedLaunchCommand())
	return nil
}

func sendParamsCmd(cmd *cobra.Command, args []string) error {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		return err
	}
	defer logflags.Close()

	if paramsFd < 0 {
		return errors.New("you must provide --params-fd")
	}
	exe, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	params := launch.ConnectionParams{ExeImage: exe, Host: host, Port: port}
	if logflags.ParamsWire() {
		logflags.ParamsWireLogger().Debugf("-> %s", params)
	}
	err = launch.SendParams(paramsFd, params)
	unix.Close(paramsFd)
	return err
}

func monitorCmd(cmd *cobra.Command, args []string) error {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		return err
	}
	defer logflags.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), unix.SIGTERM)
	defer cancel()

	// SIGINT from the terminal reaches the monitored command and the
	// debugger directly, gdblaunch outlives it.
	intch := make(chan os.Signal, 1)
	signal.Notify(intch, os.Interrupt)
	defer signal.Stop(intch)

	err := monitor.New(workingDir).Run(ctx, args)
	var exitErr interface{ ExitCode() int }
	if errors.As(err, &exitErr) {
		return fmt.Errorf("monitored command exited with status %d", exitErr.ExitCode())
	}
	return err
}
