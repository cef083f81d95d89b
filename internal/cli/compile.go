package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atlekbai/docwrite/internal/schema"
	"github.com/atlekbai/docwrite/internal/update"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	SchemaFile    string
	Table         string
	Selector      string
	Modifier      string
	Limit         int
	ReturnUpdated bool
	Delete        bool
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Print the SQL a write compiles to",
		Long: `Compile a selector and a modifier against a YAML schema file and print
the resulting statement and its arguments. Selector and modifier are JSON;
a JSON string selector is a bare _id. Key order is preserved.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.SchemaFile, "schema", "", "YAML schema file (required)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "table name (required)")
	cmd.Flags().StringVar(&opts.Selector, "selector", "{}", "selector JSON")
	cmd.Flags().StringVar(&opts.Modifier, "modifier", "", "modifier JSON")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of rows to affect")
	cmd.Flags().BoolVar(&opts.ReturnUpdated, "return-updated", false, "return whole rows instead of _id")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "compile a delete instead of an update")
	_ = cmd.MarkFlagRequired("schema")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func runCompile(opts *CompileOptions, cmd *cobra.Command) error {
	reg, err := schema.LoadFile(opts.SchemaFile)
	if err != nil {
		return err
	}

	sel, err := update.ParseSelector([]byte(opts.Selector))
	if err != nil {
		return err
	}

	q, err := compileQuery(reg, opts, sel)
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"sql": q.SQL, "args": q.Args})
	}
	fmt.Fprintln(cmd.OutOrStdout(), q.SQL)
	for i, a := range q.Args {
		fmt.Fprintf(cmd.OutOrStdout(), "  $%d = %#v\n", i+1, a)
	}
	return nil
}

func compileQuery(reg *schema.Cache, opts *CompileOptions, sel update.Selector) (*update.Query, error) {
	qopts := update.Options{Limit: opts.Limit, ReturnUpdated: opts.ReturnUpdated}
	if opts.Delete {
		if opts.Modifier != "" {
			return nil, errors.New("--modifier cannot be used with --delete")
		}
		return update.CompileDelete(reg, opts.Table, sel, qopts)
	}

	if opts.Modifier == "" {
		return nil, errors.New("--modifier is required")
	}
	mod, err := update.ParseModifier([]byte(opts.Modifier))
	if err != nil {
		return nil, err
	}
	return update.Compile(reg, opts.Table, sel, mod, qopts)
}
