// Package cli implements ymmctl, an operator tool that runs the
// compatibility engine directly against one store's upstream catalog.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"ymmfilter/compat-service/internal/cache"
	"ymmfilter/compat-service/internal/catalog"
	"ymmfilter/compat-service/internal/credential"
	"ymmfilter/compat-service/internal/model"
	"ymmfilter/compat-service/internal/ymm"
)

const defaultBaseURL = "https://api.bigcommerce.com/stores/%s/v3"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	StoreHash string
	Token     string
	BaseURL   string // fmt template taking the store hash
	PageSize  int
	MaxPages  int
	Verbose   bool
	Format    string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for ymmctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ymmctl",
		Short: "ymmctl - vehicle compatibility engine tool",
		Long:  "Walk a store catalog and run YMM lookups against it without the service.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.StoreHash, "store", os.Getenv("YMM_STORE_HASH"), "store hash")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv("YMM_AUTH_TOKEN"), "store access token")
	cmd.PersistentFlags().StringVar(&opts.BaseURL, "base-url", defaultBaseURL, "upstream API base URL template (%s is the store hash)")
	cmd.PersistentFlags().IntVar(&opts.PageSize, "page-size", 50, "items per upstream page")
	cmd.PersistentFlags().IntVar(&opts.MaxPages, "max-pages", 20, "page ceiling of a full walk")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewWalkCommand(opts))
	cmd.AddCommand(NewMakesCommand(opts))
	cmd.AddCommand(NewModelsCommand(opts))
	cmd.AddCommand(NewYearsCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))

	return cmd
}

// engine is the in-process stack a command runs against.
type engine struct {
	walker *catalog.Walker
	svc    *ymm.Service
	cred   model.StoreCredential
}

func newEngine(opts *RootOptions, cmd *cobra.Command) (*engine, error) {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	resolver := credential.NewResolver(opts.BaseURL, logger, credential.Explicit{})
	cred, err := resolver.Resolve(cmd.Context(), credential.Sources{StoreID: opts.StoreHash, AccessToken: opts.Token})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "--store and --token are required", err)
	}

	walker := catalog.NewWalker(catalog.NewClient(),
		catalog.WithPageSize(opts.PageSize),
		catalog.WithMaxPages(opts.MaxPages),
		catalog.WithLogger(logger),
	)
	results := cache.New(cache.NewMemoryStore(), logger, nil)
	svc := ymm.NewService(walker, nil, results, ymm.Options{Logger: logger})
	return &engine{walker: walker, svc: svc, cred: cred}, nil
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
