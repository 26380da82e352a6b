package gdbmacros

import "strings"

// Command describes a replay command implemented by the server and exposed
// to gdb through a python binding. Invoking it sends a qRRCmd packet
// carrying the command name, the current thread, the output of each
// AutoArgs gdb command and the user supplied arguments.
type Command struct {
	Name     string
	AutoArgs []string
	Docs     string
}

func (cmd Command) binding() string {
	var sb strings.Builder
	sb.WriteString("python RRCmd('")
	sb.WriteString(cmd.Name)
	sb.WriteString("', [")
	for i, arg := range cmd.AutoArgs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("'" + arg + "'")
	}
	sb.WriteString("])\n")
	if cmd.Docs != "" {
		sb.WriteString("document " + cmd.Name + "\n" + cmd.Docs + "\nend\n")
	}
	return sb.String()
}

// DefaultCommands returns the extension commands served by a replay session.
func DefaultCommands() []Command {
	return []Command{
		{Name: "elapsed-time", Docs: "Print elapsed time (in seconds) since the start of the trace, in the 'record' timeline."},
		{Name: "when", Docs: "Print the number of the last completely replayed rr event."},
		{Name: "when-ticks", Docs: "Print the current rr tick count for the current thread."},
		{Name: "when-tid", Docs: "Print the real tid for the current thread."},
		{Name: "rr-history-push"},
		{Name: "back", Docs: "Go back one entry in the rr history."},
		{Name: "forward", Docs: "Go forward one entry in the rr history."},
		{Name: "checkpoint", AutoArgs: []string{"rr-where"}, Docs: "create a checkpoint representing a point in the execution\nuse the 'restart' command to return to the checkpoint"},
		{Name: "delete checkpoint", Docs: "remove a checkpoint created with the 'checkpoint' command"},
		{Name: "info checkpoints", Docs: "list all checkpoints created with the 'checkpoint' command"},
	}
}
