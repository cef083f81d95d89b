package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atlekbai/docwrite/internal/db"
)

// FunctionsOptions holds flags for the functions command.
type FunctionsOptions struct {
	*RootOptions
	Apply       bool
	DatabaseURL string
}

// NewFunctionsCommand creates the functions command.
func NewFunctionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FunctionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "functions",
		Short: "Print or install the SQL helper functions",
		Long: `Compiled statements call fm_add_to_set and fm_build_nested_jsonb.
Without --apply the DDL is printed; with --apply it is installed.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunctions(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Apply, "apply", false, "install the functions")
	cmd.Flags().StringVar(&opts.DatabaseURL, "database-url", "", "Postgres connection URL (defaults to $DATABASE_URL)")

	return cmd
}

func runFunctions(opts *FunctionsOptions, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	if !opts.Apply {
		if opts.Format == "json" {
			names := make([]string, len(db.Functions))
			for i, f := range db.Functions {
				names[i] = f.Key()
			}
			return writeJSON(out, map[string]any{"functions": names, "ddl": db.DDL()})
		}
		_, err := fmt.Fprint(out, db.DDL())
		return err
	}

	url := opts.DatabaseURL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		return fmt.Errorf("--database-url or DATABASE_URL is required with --apply")
	}

	pool, err := db.NewPool(cmd.Context(), url, "")
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.InstallFunctions(cmd.Context(), pool); err != nil {
		return err
	}
	fmt.Fprintf(out, "installed %d functions\n", len(db.Functions))
	return nil
}
