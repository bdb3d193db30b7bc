package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/artpar/crudkit/bootstrap"
	"github.com/artpar/crudkit/core/channel/cli"
	"github.com/artpar/crudkit/core/runtime"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string

	// app is created by the first command that needs the runtime.
	app *bootstrap.App
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "crudkit",
	Short: "Declarative CRUD operations over YAML resource definitions",
	Long: `crudkit runs list, show, new, edit, create, update and destroy operations
against resources defined in YAML. Each operation resolves its defaults
(includes, scopes, order, page size and more) from the resource definition,
normalizes submitted attributes and persists to SQLite.

Quick start:
  crudkit validate                       # Check config and definitions
  crudkit list album --page 2            # List records
  crudkit create album -s title=Blue     # Create a record
  crudkit shell                          # Interactive shell
  crudkit audit album                    # Recent changes`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if app != nil {
		if cerr := app.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "Error: close: %v\n", cerr)
		}
	}
	if err != nil {
		if !errors.Is(err, cli.ErrRejected) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// provide builds the application on first use.
func provide(ctx context.Context) (*runtime.Runtime, error) {
	if app == nil {
		a, err := bootstrap.New(ctx, bootstrap.Options{ConfigPath: cfgFile})
		if err != nil {
			return nil, err
		}
		app = a
	}
	return app.Runtime, nil
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "crudkit.yaml", "config file path")

	ch := cli.New(rootCmd, provide)
	// Execute reports errors.
	ch.SetOutput(os.Stdout, io.Discard)
	ch.Register()
}
