package launch

import (
	"net"
	"strconv"
)

const targetCmd = "target extended-remote "

// DefaultOptions returns the gdb options every launch starts with.
//
// gdb expects the vRun packet used to restart a replay to complete within
// the remote reply timeout, while reaching the restart target can take
// arbitrarily long, so the timeout is raised. Unless the server is asked to
// serve files gdb reads binaries from the local filesystem instead of
// fetching them through vFile, since the names seen by gdb may be symlinks
// to files in the trace.
func DefaultOptions(serveFiles bool) []string {
	opts := []string{"-l", "10000"}
	if !serveFiles {
		opts = append(opts, "-ex", "set sysroot /")
	}
	return opts
}

// TargetRemoteCmd returns the option pair that connects gdb to the server.
// The host is always spelled out, resolving "localhost" is broken in some
// environments.
func TargetRemoteCmd(host string, port uint16) []string {
	return []string{"-ex", targetCmd + net.JoinHostPort(host, strconv.Itoa(int(port)))}
}

// LaunchCommand returns the command a user can run to attach gdb to a server
// listening on host:port. The shell rendering of the result is saved, see
// SavedLaunchCommand.
func (l *Launcher) LaunchCommand(exeImage, host string, port uint16, serveFiles bool, debuggerName string) []string {
	cmd := []string{debuggerName}
	cmd = append(cmd, DefaultOptions(serveFiles)...)
	cmd = append(cmd, TargetRemoteCmd(host, port)...)
	cmd = append(cmd, exeImage)

	l.savedMu.Lock()
	l.saved = ShellString(cmd)
	l.savedMu.Unlock()
	return cmd
}

// SavedLaunchCommand returns the shell rendering of the last command
// computed by LaunchCommand, or the empty string.
func (l *Launcher) SavedLaunchCommand() string {
	l.savedMu.Lock()
	defer l.savedMu.Unlock()
	return l.saved
}

// needsTarget reports whether an "-ex opt" pair resumes execution, in which
// case gdb has to be connected before it runs.
func needsTarget(opt string) bool {
	return opt == "continue"
}

// BootstrapArgs returns the argument vector used to exec gdb once the
// connection parameters are known. The target command is inserted once,
// right before the first "-ex continue" pair of options, or after all
// options if there is no such pair.
func BootstrapArgs(debuggerPath, commandFile string, options []string, params ConnectionParams, serveFiles bool) []string {
	args := make([]string, 0, len(options)+9)
	args = append(args, debuggerPath)
	args = append(args, DefaultOptions(serveFiles)...)
	args = append(args, "-x", commandFile)

	didSetRemote := false
	for i := range options {
		if !didSetRemote && options[i] == "-ex" && i+1 < len(options) && needsTarget(options[i+1]) {
			args = append(args, TargetRemoteCmd(params.Host, params.Port)...)
			didSetRemote = true
		}
		args = append(args, options[i])
	}
	if !didSetRemote {
		args = append(args, TargetRemoteCmd(params.Host, params.Port)...)
	}
	return append(args, params.ExeImage)
}
