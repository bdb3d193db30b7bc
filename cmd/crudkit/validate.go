package main

import (
	"fmt"
	"os"

	"github.com/artpar/crudkit/config"
	"github.com/artpar/crudkit/core/registry"
	"github.com/artpar/crudkit/core/schema"
	"github.com/artpar/crudkit/core/storage"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and resource definitions",
	Long: `Validate the crudkit configuration and resource definitions.

Checks:
  - Config file syntax and values (falls back to CRUDKIT_* variables)
  - Every resource definition parses and is valid
  - Every association names a loaded resource
  - Database is writable (optional)

Examples:
  crudkit validate
  crudkit validate --config /etc/crudkit/crudkit.yaml --check-database`,
	RunE: runValidate,
}

var validateCheckDatabase bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if the database is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	source := cfgFile
	if _, err := os.Stat(cfgFile); err != nil {
		source = "environment"
	}
	fmt.Fprintf(out, "Validating %s...\n\n", source)

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)
	fmt.Fprintf(out, "  %s Database: %s (%s)\n", checkMark, cfg.Database.DSN, cfg.Database.Driver)
	fmt.Fprintf(out, "  %s Defaults: strategy %s, page size %d\n", checkMark, cfg.Defaults.Strategy, cfg.Defaults.PageSize)
	fmt.Fprintf(out, "  %s Authorization: %s\n", checkMark, cfg.Authorization.Mode)

	resources, err := schema.ParseDir(cfg.Resources.Dir)
	if err != nil {
		fmt.Fprintf(out, "  %s Resource definitions parse\n", crossMark)
		return err
	}

	reg := registry.New()
	for _, res := range resources {
		if err := schema.Validate(res); err != nil {
			fmt.Fprintf(out, "  %s Resource %s\n", crossMark, res.Name)
			return err
		}
		if _, err := reg.Register(res); err != nil {
			fmt.Fprintf(out, "  %s Resource %s\n", crossMark, res.Name)
			return err
		}
		fmt.Fprintf(out, "  %s Resource %s (%d fields, %d associations)\n",
			checkMark, res.Name, len(res.Fields), len(res.Associations))
	}

	if err := reg.Check(); err != nil {
		fmt.Fprintf(out, "  %s Associations resolve\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Associations resolve\n", checkMark)

	if validateCheckDatabase {
		if err := checkDatabaseWritable(cfg.Database.DSN, reg); err != nil {
			fmt.Fprintf(out, "  %s Database writable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Database writable\n", checkMark)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func checkDatabaseWritable(dsn string, reg *registry.Registry) error {
	store, err := storage.NewSQLiteStore(dsn, reg)
	if err != nil {
		return err
	}
	defer store.Close()
	_, err = store.DB().Exec("CREATE TEMP TABLE crudkit_validate (id INTEGER)")
	return err
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
