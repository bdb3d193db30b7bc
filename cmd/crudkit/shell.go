package main

import (
	"github.com/artpar/crudkit/core/channel/tty"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start interactive shell",
	Long: `Start an interactive REPL over the loaded resources.

The shell keeps one runtime open and watches the config file, so changes
to the reloadable settings (default loading strategy, page sizes, log
level) apply without restarting. Send SIGHUP or type 'reload' to reload
on demand.

Examples:
  crudkit shell

Interactive commands:
  resources                List loaded resources
  describe <resource>      Show a resource definition
  list <resource> ...      List records (same flags as 'crudkit list')
  show <resource> <id>     Show a record
  new <resource> ...       Build a record without saving
  edit <resource> <id>     Load a record for editing
  create <resource> ...    Create a record
  update <resource> ...    Update a record
  destroy <resource> <id>  Destroy a record
  help                     Show help
  quit                     Exit shell`,
	RunE: runShell,
}

var shellNoStats bool

func init() {
	rootCmd.AddCommand(shellCmd)

	shellCmd.Flags().BoolVar(&shellNoStats, "no-stats", false, "hide execution stats")
}

func runShell(cmd *cobra.Command, args []string) error {
	rt, err := provide(cmd.Context())
	if err != nil {
		return err
	}
	if err := app.Watch(); err != nil {
		return err
	}

	opts := []tty.Option{
		tty.WithIO(cmd.InOrStdin(), cmd.OutOrStdout()),
		tty.WithStats(!shellNoStats),
	}
	if app.Reloadable() {
		opts = append(opts, tty.WithReload(app.Reload))
	}
	return tty.New(rt, opts...).Run(cmd.Context())
}
