// Package cli provides a CLI channel that runs resource operations.
// It adds list, show, new, create, update and destroy commands that take
// the resource name as their first argument.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/artpar/crudkit/core/authz"
	"github.com/artpar/crudkit/core/defaults"
	"github.com/artpar/crudkit/core/formatter"
	"github.com/artpar/crudkit/core/record"
	"github.com/artpar/crudkit/core/runtime"
	"github.com/spf13/cobra"
)

// ErrRejected is returned when a write was refused with validation
// errors. The errors have already been printed.
var ErrRejected = errors.New("record rejected")

// Provider returns the runtime the commands operate on. It is called when
// a command runs, after flags are parsed.
type Provider func(ctx context.Context) (*runtime.Runtime, error)

// Channel implements the CLI channel for resources.
type Channel struct {
	rootCmd    *cobra.Command
	provide    Provider
	formatters *formatter.Registry
	prompter   *Prompter
	out        io.Writer
	errOut     io.Writer
}

// New creates a new CLI channel.
func New(rootCmd *cobra.Command, provide Provider) *Channel {
	return &Channel{
		rootCmd:    rootCmd,
		provide:    provide,
		formatters: formatter.DefaultRegistry,
		prompter:   DefaultPrompter,
		out:        os.Stdout,
		errOut:     os.Stderr,
	}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return "cli"
}

// SetOutput redirects command output.
func (c *Channel) SetOutput(out, errOut io.Writer) {
	c.out = out
	c.errOut = errOut
}

// SetPrompter replaces the prompter used for interactive input.
func (c *Channel) SetPrompter(p *Prompter) {
	c.prompter = p
}

// Register adds the operation commands to the root command.
func (c *Channel) Register() {
	c.rootCmd.AddCommand(
		c.buildListCommand(),
		c.buildShowCommand(),
		c.buildNewCommand(),
		c.buildEditCommand(),
		c.buildCreateCommand(),
		c.buildUpdateCommand(),
		c.buildDestroyCommand(),
	)
}

// resource resolves the runtime and the named resource.
func (c *Channel) resource(cmd *cobra.Command, name string) (*runtime.Resource, error) {
	rt, err := c.provide(cmd.Context())
	if err != nil {
		return nil, err
	}
	r, ok := rt.Resource(name)
	if !ok {
		return nil, fmt.Errorf("unknown resource %q", name)
	}
	return r, nil
}

// context returns the command context carrying the principal named by
// the --as and --role flags.
func (c *Channel) context(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	id, _ := cmd.Flags().GetString("as")
	roles, _ := cmd.Flags().GetStringSlice("role")
	if id == "" && len(roles) == 0 {
		return ctx
	}
	return authz.WithPrincipal(ctx, &authz.Principal{ID: id, Roles: roles})
}

// buildListCommand creates the list command.
func (c *Channel) buildListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <resource>",
		Short: "List the records of a resource",
		Long: `List the records of a resource.

Search keys combine a field and a predicate, e.g. --search title_cont=blue
or --search year_gteq=1970. Scopes with arguments are written name=arg.
Options not given fall back to the resource's defaults.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.resource(cmd, args[0])
			if err != nil {
				return c.formatError(cmd, err)
			}

			opts := c.queryOptions(cmd)
			opts.Page, _ = cmd.Flags().GetInt("page")
			opts.PerPage, _ = cmd.Flags().GetInt("per-page")
			opts.Unpaginated, _ = cmd.Flags().GetBool("all")
			if search, _ := cmd.Flags().GetStringToString("search"); len(search) > 0 {
				opts.Search = make(map[string]any, len(search))
				for k, v := range search {
					opts.Search[k] = v
				}
			}
			if scopes, _ := cmd.Flags().GetStringArray("scope"); cmd.Flags().Changed("scope") {
				opts.Scopes = parseScopes(scopes)
			}

			ctx := c.context(cmd)
			inv, err := r.List(ctx, opts)
			if err != nil {
				return c.formatError(cmd, err)
			}
			records, err := r.All(ctx, inv.Query)
			if err != nil {
				return c.formatError(cmd, err)
			}

			fo := c.getFormatOptions(cmd)
			if !opts.Unpaginated {
				page, err := r.Page(ctx, inv.Query)
				if err != nil {
					return c.formatError(cmd, err)
				}
				fo.Page = &page
			}
			return c.formatList(cmd, r, records, fo)
		},
	}

	cmd.Flags().StringToString("search", nil, "Search conditions (field_predicate=value)")
	cmd.Flags().StringArray("scope", nil, "Scope to apply, name or name=arg (repeatable)")
	cmd.Flags().IntP("page", "p", 1, "Page number")
	cmd.Flags().Int("per-page", 0, "Records per page (default: resource default)")
	cmd.Flags().Bool("all", false, "Return every matching record")
	c.addQueryFlags(cmd)
	c.addPrincipalFlags(cmd)
	c.addOutputFlags(cmd)

	return cmd
}

// buildShowCommand creates the show command.
func (c *Channel) buildShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <resource> <id-or-lookup>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.resource(cmd, args[0])
			if err != nil {
				return c.formatError(cmd, err)
			}

			opts := c.queryOptions(cmd)
			opts.Key = args[1]

			inv, err := r.Show(c.context(cmd), opts)
			if err != nil {
				return c.formatError(cmd, err)
			}
			return c.formatRecord(cmd, r, inv.Record, c.getFormatOptions(cmd))
		},
	}

	c.addQueryFlags(cmd)
	c.addPrincipalFlags(cmd)
	c.addOutputFlags(cmd)

	return cmd
}

// buildNewCommand creates the new command. It prints the record create
// would build without saving it.
func (c *Channel) buildNewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new <resource>",
		Short: "Build a record with its defaults without saving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.resource(cmd, args[0])
			if err != nil {
				return c.formatError(cmd, err)
			}
			attrs, err := c.attributes(cmd, r, false)
			if err != nil {
				return c.formatError(cmd, err)
			}

			inv, err := r.New(c.context(cmd), runtime.Options{Attributes: attrs})
			if err != nil {
				return c.formatError(cmd, err)
			}
			return c.formatRecord(cmd, r, inv.Record, c.getFormatOptions(cmd))
		},
	}

	c.addAttributeFlags(cmd)
	c.addPrincipalFlags(cmd)
	c.addOutputFlags(cmd)

	return cmd
}

// buildEditCommand creates the edit command. It prints the record update
// would start from, with the edit defaults applied.
func (c *Channel) buildEditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <resource> <id-or-lookup>",
		Short: "Load a record for editing without changing it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.resource(cmd, args[0])
			if err != nil {
				return c.formatError(cmd, err)
			}

			opts := c.queryOptions(cmd)
			opts.Key = args[1]

			inv, err := r.Edit(c.context(cmd), opts)
			if err != nil {
				return c.formatError(cmd, err)
			}
			return c.formatRecord(cmd, r, inv.Record, c.getFormatOptions(cmd))
		},
	}

	c.addQueryFlags(cmd)
	c.addPrincipalFlags(cmd)
	c.addOutputFlags(cmd)

	return cmd
}

// buildCreateCommand creates the create command.
func (c *Channel) buildCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <resource>",
		Short: "Create a record",
		Long: `Create a record.

Attributes are given as --set field=value. Nested records use form keys,
e.g. --set 'tracks_attributes[0][title]=River'. Dates and decimals may be
written in the configured locale.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.resource(cmd, args[0])
			if err != nil {
				return c.formatError(cmd, err)
			}
			prompt, _ := cmd.Flags().GetBool("prompt")
			attrs, err := c.attributes(cmd, r, prompt)
			if err != nil {
				return c.formatError(cmd, err)
			}

			inv, ok, err := r.Create(c.context(cmd), runtime.Options{Attributes: attrs})
			if err != nil {
				return c.formatError(cmd, err)
			}
			return c.reportWrite(cmd, r, inv, ok, "Created")
		},
	}

	cmd.Flags().Bool("prompt", false, "Prompt for required fields not given")
	c.addAttributeFlags(cmd)
	c.addPrincipalFlags(cmd)
	c.addOutputFlags(cmd)

	return cmd
}

// buildUpdateCommand creates the update command.
func (c *Channel) buildUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <resource> <id-or-lookup>",
		Short: "Update a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.resource(cmd, args[0])
			if err != nil {
				return c.formatError(cmd, err)
			}
			attrs, err := c.attributes(cmd, r, false)
			if err != nil {
				return c.formatError(cmd, err)
			}
			if len(attrs) == 0 {
				return c.formatError(cmd, fmt.Errorf("no fields to update"))
			}

			inv, ok, err := r.Update(c.context(cmd), runtime.Options{Key: args[1], Attributes: attrs})
			if err != nil {
				return c.formatError(cmd, err)
			}
			return c.reportWrite(cmd, r, inv, ok, "Updated")
		},
	}

	c.addAttributeFlags(cmd)
	c.addPrincipalFlags(cmd)
	c.addOutputFlags(cmd)

	return cmd
}

// buildDestroyCommand creates the destroy command.
func (c *Channel) buildDestroyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "destroy <resource> <id-or-lookup>",
		Aliases: []string{"delete"},
		Short:   "Destroy a record",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.resource(cmd, args[0])
			if err != nil {
				return c.formatError(cmd, err)
			}

			force, _ := cmd.Flags().GetBool("force")
			if !force {
				ok, err := c.prompter.Confirm(fmt.Sprintf("Destroy %s %s?", r.Name(), args[1]))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(c.out, "Aborted.")
					return nil
				}
			}

			inv, ok, err := r.Destroy(c.context(cmd), runtime.Options{Key: args[1]})
			if err != nil {
				return c.formatError(cmd, err)
			}
			return c.reportWrite(cmd, r, inv, ok, "Destroyed")
		},
	}

	cmd.Flags().BoolP("force", "f", false, "Destroy without confirmation")
	c.addPrincipalFlags(cmd)
	c.addOutputFlags(cmd)

	return cmd
}

// reportWrite prints the outcome of create, update or destroy.
func (c *Channel) reportWrite(cmd *cobra.Command, r *runtime.Resource, inv *runtime.Invocation, ok bool, verb string) error {
	fo := c.getFormatOptions(cmd)
	if !ok {
		fo.Errors = errorMap(inv.Record.Errors())
		if err := c.formatRecord(cmd, r, inv.Record, fo); err != nil {
			return err
		}
		return ErrRejected
	}

	// Machine readable formats print the record itself.
	if outputFmt, _ := cmd.Flags().GetString("output"); outputFmt != "" && outputFmt != "table" {
		return c.formatRecord(cmd, r, inv.Record, fo)
	}
	fmt.Fprintf(c.out, "%s %s: %v\n", verb, r.Name(), inv.Record.ID())
	return nil
}

// queryOptions reads the options shared by list and show. Flags not
// given stay nil so the resource defaults apply.
func (c *Channel) queryOptions(cmd *cobra.Command) runtime.Options {
	var opts runtime.Options
	if cmd.Flags().Changed("include") {
		includes, _ := cmd.Flags().GetStringSlice("include")
		opts.Includes = includes
	}
	if cmd.Flags().Changed("select") {
		fields, _ := cmd.Flags().GetStringSlice("select")
		opts.Select = fields
	}
	if cmd.Flags().Changed("order") {
		order, _ := cmd.Flags().GetString("order")
		opts.Order = order
	}
	return opts
}

// attributes collects --set values as form values. With prompt set, the
// required fields still missing are asked for.
func (c *Channel) attributes(cmd *cobra.Command, r *runtime.Resource, prompt bool) (url.Values, error) {
	pairs, _ := cmd.Flags().GetStringArray("set")
	form := url.Values{}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q: want field=value", pair)
		}
		form.Add(k, v)
	}

	if prompt {
		answers, err := c.prompter.PromptForFields(r.Definition(), form)
		if err != nil {
			return nil, err
		}
		for k, v := range answers {
			form.Set(k, v)
		}
	}
	return form, nil
}

func (c *Channel) addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("include", nil, "Associations to load, e.g. artist,tracks")
	cmd.Flags().StringSlice("select", nil, "Fields to return")
	cmd.Flags().String("order", "", `Ordering, e.g. "year desc, title"`)
}

func (c *Channel) addAttributeFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("set", "s", nil, "Attribute value, field=value (repeatable)")
}

func (c *Channel) addPrincipalFlags(cmd *cobra.Command) {
	cmd.Flags().String("as", "", "Principal id to run as")
	cmd.Flags().StringSlice("role", nil, "Principal roles")
}

// addOutputFlags adds common output format flags to a command.
func (c *Channel) addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "O", "table", "Output format: "+strings.Join(c.formatters.List(), ", "))
	cmd.Flags().Bool("no-header", false, "Disable header row (table format)")
	cmd.Flags().Bool("compact", false, "Compact output (json)")
}

// getFormatter returns the formatter for the current command.
func (c *Channel) getFormatter(cmd *cobra.Command) formatter.Formatter {
	outputFmt, _ := cmd.Flags().GetString("output")
	if outputFmt == "" {
		outputFmt = "table"
	}

	f, ok := c.formatters.Get(outputFmt)
	if !ok {
		return c.formatters.Default()
	}
	return f
}

// getFormatOptions builds format options from command flags.
func (c *Channel) getFormatOptions(cmd *cobra.Command) formatter.FormatOptions {
	noHeader, _ := cmd.Flags().GetBool("no-header")
	compact, _ := cmd.Flags().GetBool("compact")

	opts := formatter.FormatOptions{
		NoHeader: noHeader,
		Compact:  compact,
		MaxWidth: 40,
	}
	if cmd.Flags().Lookup("select") != nil && cmd.Flags().Changed("select") {
		opts.Columns, _ = cmd.Flags().GetStringSlice("select")
	}
	return opts
}

// formatList formats and outputs a list of records.
func (c *Channel) formatList(cmd *cobra.Command, r *runtime.Resource, records []*record.Record, opts formatter.FormatOptions) error {
	rows := make([]map[string]any, len(records))
	for i, rec := range records {
		rows[i] = rec.Map()
	}
	return c.getFormatter(cmd).FormatList(c.out, r.Definition(), rows, opts)
}

// formatRecord formats and outputs a single record.
func (c *Channel) formatRecord(cmd *cobra.Command, r *runtime.Resource, rec *record.Record, opts formatter.FormatOptions) error {
	var row map[string]any
	if rec != nil {
		row = rec.Map()
	}
	return c.getFormatter(cmd).FormatRecord(c.out, r.Definition(), row, opts)
}

// formatError formats and outputs an error.
func (c *Channel) formatError(cmd *cobra.Command, err error) error {
	c.getFormatter(cmd).FormatError(c.errOut, err)
	return err
}

// parseScopes turns "name" and "name=arg" flag values into scopes.
func parseScopes(values []string) []defaults.Scope {
	scopes := make([]defaults.Scope, 0, len(values))
	for _, v := range values {
		name, arg, hasArg := strings.Cut(v, "=")
		s := defaults.Scope{Name: strings.TrimSpace(name), Args: []any{}}
		if hasArg {
			s.Args = append(s.Args, arg)
		}
		scopes = append(scopes, s)
	}
	return scopes
}

func errorMap(errs *record.Errors) map[string][]string {
	out := make(map[string][]string)
	for _, fe := range errs.All() {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}
