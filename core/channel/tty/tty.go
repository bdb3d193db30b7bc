// Package tty provides an interactive terminal channel for resources.
// Each line is run as a CLI command against a single long-lived runtime.
package tty

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	goruntime "runtime"
	"sort"
	"strings"
	"time"

	"github.com/artpar/crudkit/core/channel/cli"
	"github.com/artpar/crudkit/core/runtime"
	"github.com/spf13/cobra"
)

// Channel implements the TTY channel for interactive terminal sessions.
type Channel struct {
	runtime   *runtime.Runtime
	reader    *bufio.Reader
	out       io.Writer
	prompt    string
	running   bool
	showStats bool // Show execution stats after each command
	reload    func() error
}

// Option configures a Channel.
type Option func(*Channel)

// WithIO reads commands from in and writes to out.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(c *Channel) {
		c.reader = bufio.NewReader(in)
		c.out = out
	}
}

// WithReload enables the reload command.
func WithReload(fn func() error) Option {
	return func(c *Channel) { c.reload = fn }
}

// WithStats sets whether execution stats follow each command.
func WithStats(show bool) Option {
	return func(c *Channel) { c.showStats = show }
}

// New creates a new TTY channel.
func New(rt *runtime.Runtime, opts ...Option) *Channel {
	c := &Channel{
		runtime:   rt,
		reader:    bufio.NewReader(os.Stdin),
		out:       os.Stdout,
		prompt:    "crudkit> ",
		showStats: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// captureStats captures current memory stats.
func captureStats() goruntime.MemStats {
	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)
	return m
}

// formatBytes formats bytes as human readable.
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// printStats prints execution statistics.
func (c *Channel) printStats(duration time.Duration, before, after goruntime.MemStats) {
	memUsed := int64(after.Alloc) - int64(before.Alloc)
	if memUsed < 0 {
		memUsed = 0 // GC happened
	}
	gcRuns := after.NumGC - before.NumGC

	fmt.Fprintf(c.out, "\033[90m") // dim gray
	fmt.Fprintf(c.out, "  time %v", duration.Round(time.Microsecond))
	fmt.Fprintf(c.out, "  alloc %s", formatBytes(uint64(memUsed)))
	fmt.Fprintf(c.out, "  sys %s", formatBytes(after.Sys))
	if gcRuns > 0 {
		fmt.Fprintf(c.out, "  gc %d", gcRuns)
	}
	fmt.Fprintf(c.out, "\033[0m\n") // reset
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return "tty"
}

// Stop stops the REPL after the current command.
func (c *Channel) Stop() {
	c.running = false
}

// Run starts the interactive REPL. It returns when the input ends, the
// user quits or ctx is cancelled.
func (c *Channel) Run(ctx context.Context) error {
	c.running = true

	fmt.Fprintln(c.out, "crudkit interactive shell")
	fmt.Fprintln(c.out, "Type 'help' for available commands, 'quit' to exit")
	fmt.Fprintln(c.out)

	for c.running {
		if ctx.Err() != nil {
			return nil
		}

		fmt.Fprint(c.out, c.prompt)
		line, err := c.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		before := captureStats()
		start := time.Now()

		err = c.execute(ctx, line)

		duration := time.Since(start)
		after := captureStats()

		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}

		if c.showStats && c.running {
			c.printStats(duration, before, after)
		}
	}

	return nil
}

// execute parses and executes a command line.
func (c *Channel) execute(ctx context.Context, line string) error {
	parts := parseArgs(line)
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "quit", "exit", "q":
		c.running = false
		fmt.Fprintln(c.out, "Goodbye!")
		return nil

	case "help", "h", "?":
		return c.showHelp(parts[1:])

	case "resources":
		return c.listResources()

	case "functions":
		return c.listFunctions()

	case "describe":
		if len(parts) != 2 {
			return fmt.Errorf("usage: describe <resource>")
		}
		return c.describe(parts[1])

	case "reload":
		if c.reload == nil {
			return fmt.Errorf("reload is not available without a config file")
		}
		if err := c.reload(); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Configuration reloaded (strategy %s, page size %d)\n",
			c.runtime.DefaultStrategy(), c.runtime.Paginator().DefaultPageSize())
		return nil

	case "stats":
		c.showStats = !c.showStats
		if c.showStats {
			fmt.Fprintln(c.out, "Stats display enabled")
		} else {
			fmt.Fprintln(c.out, "Stats display disabled")
		}
		return nil

	default:
		// A resource name followed by an operation reads naturally too.
		if _, ok := c.runtime.Resource(parts[0]); ok && len(parts) > 1 {
			parts[0], parts[1] = parts[1], parts[0]
		}
		return c.dispatch(ctx, parts)
	}
}

// dispatch runs an operation command through a fresh CLI command tree.
func (c *Channel) dispatch(ctx context.Context, args []string) error {
	root := &cobra.Command{
		Use:           "crudkit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.out)
	root.SetErr(c.out)

	ch := cli.New(root, func(context.Context) (*runtime.Runtime, error) {
		return c.runtime, nil
	})
	// Errors are reported once, by the REPL loop.
	ch.SetOutput(c.out, io.Discard)
	ch.SetPrompter(cli.NewPrompterFrom(c.reader, c.out))
	ch.Register()

	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if errors.Is(err, cli.ErrRejected) {
		return nil
	}
	if err != nil && strings.HasPrefix(err.Error(), "unknown command") {
		return fmt.Errorf("unknown command: %s (try 'help')", args[0])
	}
	return err
}

// showHelp displays help information.
func (c *Channel) showHelp(args []string) error {
	if len(args) > 0 {
		r, ok := c.runtime.Resource(args[0])
		if !ok {
			return fmt.Errorf("unknown resource %q", args[0])
		}
		name, plural := r.Name(), r.Definition().Plural
		fmt.Fprintf(c.out, "\n%s commands:\n", name)
		fmt.Fprintf(c.out, "  list %-24s List %s\n", name, plural)
		fmt.Fprintf(c.out, "  show %-24s Show a %s\n", name+" <id>", name)
		fmt.Fprintf(c.out, "  new %-25s Build an unsaved %s\n", name, name)
		fmt.Fprintf(c.out, "  create %-22s Create a %s\n", name+" -s f=v", name)
		fmt.Fprintf(c.out, "  update %-22s Update a %s\n", name+" <id> -s f=v", name)
		fmt.Fprintf(c.out, "  destroy %-21s Destroy a %s\n", name+" <id>", name)
		fmt.Fprintln(c.out)
		return nil
	}

	fmt.Fprintln(c.out, "\nAvailable commands:")
	fmt.Fprintln(c.out, "  resources                    List loaded resources")
	fmt.Fprintln(c.out, "  describe <resource>          Show fields, associations and scopes")
	fmt.Fprintln(c.out, "  functions                    List hook functions")
	fmt.Fprintln(c.out, "  list <resource> [flags]      List records")
	fmt.Fprintln(c.out, "  show <resource> <id>         Show a record")
	fmt.Fprintln(c.out, "  new <resource> [flags]       Build a record without saving")
	fmt.Fprintln(c.out, "  edit <resource> <id>         Load a record for editing")
	fmt.Fprintln(c.out, "  create <resource> [flags]    Create a record")
	fmt.Fprintln(c.out, "  update <resource> <id> ...   Update a record")
	fmt.Fprintln(c.out, "  destroy <resource> <id>      Destroy a record")
	fmt.Fprintln(c.out, "  reload                       Reload the configuration file")
	fmt.Fprintln(c.out, "  stats                        Toggle execution stats")
	fmt.Fprintln(c.out, "  help [resource]              Show help")
	fmt.Fprintln(c.out, "  quit                         Exit shell")
	fmt.Fprintln(c.out, "\nOperation commands take the same flags as on the command line.")
	fmt.Fprintln(c.out)
	return nil
}

// listResources lists the loaded resources.
func (c *Channel) listResources() error {
	names := c.runtime.Resources()
	if len(names) == 0 {
		fmt.Fprintln(c.out, "No resources loaded.")
		return nil
	}
	fmt.Fprintln(c.out, "\nResources:")
	for _, name := range names {
		r, _ := c.runtime.Resource(name)
		def := r.Definition()
		fmt.Fprintf(c.out, "  %-15s %-15s %d fields, %d associations\n",
			name, def.Table, len(def.Fields), len(def.Associations))
	}
	fmt.Fprintln(c.out)
	return nil
}

// listFunctions prints the functions "call:" hooks can name.
func (c *Channel) listFunctions() error {
	fns := c.runtime.Functions().All()
	if len(fns) == 0 {
		fmt.Fprintln(c.out, "No hook functions registered.")
		return nil
	}
	fmt.Fprintln(c.out, "\nHook functions:")
	for _, fn := range fns {
		phases := "any phase"
		if len(fn.Phases) > 0 {
			phases = strings.Join(fn.Phases, ", ") + " only"
		}
		fmt.Fprintf(c.out, "  %-15s %-14s %s\n", fn.Name, phases, fn.Description)
	}
	fmt.Fprintln(c.out)
	return nil
}

// describe prints a resource's derived definition.
func (c *Channel) describe(name string) error {
	r, ok := c.runtime.Resource(name)
	if !ok {
		return fmt.Errorf("unknown resource %q", name)
	}
	def := r.Definition()

	fmt.Fprintf(c.out, "\n%s (table %s)\n", def.Name, def.Table)
	fmt.Fprintln(c.out, "\nFields:")
	for _, f := range def.Fields {
		var flags []string
		if f.Required {
			flags = append(flags, "required")
		}
		if f.Unique {
			flags = append(flags, "unique")
		}
		if f.Implicit {
			flags = append(flags, "implicit")
		}
		if f.Default != nil {
			flags = append(flags, fmt.Sprintf("default %v", f.Default))
		}
		if len(f.Values) > 0 {
			flags = append(flags, strings.Join(f.Values, "|"))
		}
		fmt.Fprintf(c.out, "  %-20s %-10s %s\n", f.Name, f.Type, strings.Join(flags, ", "))
	}

	if len(def.Associations) > 0 {
		fmt.Fprintln(c.out, "\nAssociations:")
		for _, a := range def.Associations {
			fmt.Fprintf(c.out, "  %-20s %-10s %s\n", a.Name, a.Kind, a.Target)
		}
	}

	if scopes := sortedKeys(def.Source.Scopes); len(scopes) > 0 {
		fmt.Fprintln(c.out, "\nScopes:")
		for _, s := range scopes {
			fmt.Fprintf(c.out, "  %s\n", s)
		}
	}

	if aspects := sortedKeys(def.Source.Defaults); len(aspects) > 0 {
		fmt.Fprintln(c.out, "\nDefaults:")
		for _, aspect := range aspects {
			ops := sortedKeys(def.Source.Defaults[aspect])
			fmt.Fprintf(c.out, "  %-20s %s\n", aspect, strings.Join(ops, ", "))
		}
	}
	fmt.Fprintln(c.out)
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// parseArgs parses a command line respecting quoted strings.
func parseArgs(line string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	for _, r := range line {
		switch {
		case r == '"' || r == '\'':
			if inQuote && r == quoteChar {
				inQuote = false
				quoteChar = 0
			} else if !inQuote {
				inQuote = true
				quoteChar = r
			} else {
				current.WriteRune(r)
			}
		case r == ' ' || r == '\t':
			if inQuote {
				current.WriteRune(r)
			} else if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	return args
}
