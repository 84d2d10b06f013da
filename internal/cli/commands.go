package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ymmfilter/compat-service/internal/compat"
	"ymmfilter/compat-service/internal/credential"
	"ymmfilter/compat-service/internal/model"
)

// NewWalkCommand creates the walk command.
func NewWalkCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "walk",
		Short: "Walk the whole catalog and print every YMM-tagged item",
		Long: `Walk the store catalog page by page, enriching each item with its
custom fields, and print the YMM records found. The walk stops at the
page ceiling (--max-pages) and reports TRUNCATED when it does.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(rootOpts, cmd)
			eng, err := newEngine(rootOpts, cmd)
			if err != nil {
				return f.Failure(GetExitCode(err), "credentials", err)
			}
			res, err := eng.walker.WalkAll(cmd.Context(), eng.cred)
			if err != nil {
				return f.Failure(ExitFailure, "walk failed", err)
			}
			f.VerboseLog("walked %d of %d page(s)", res.Pages, res.TotalPages)
			return f.Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "state: %s  pages: %d/%d  records: %d\n", res.State, res.Pages, res.TotalPages, len(res.Records))
				writeRecords(w, res.Records)
			})
		},
	}
}

// NewMakesCommand creates the makes command.
func NewMakesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "makes",
		Short:         "List the distinct makes of the store",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(rootOpts, cmd)
			eng, err := newEngine(rootOpts, cmd)
			if err != nil {
				return f.Failure(GetExitCode(err), "credentials", err)
			}
			makes, err := eng.svc.GetMakes(cmd.Context(), eng.cred)
			if err != nil {
				return f.Failure(ExitFailure, "makes lookup failed", err)
			}
			return f.Success(makes, writeLines(makes))
		},
	}
}

// NewModelsCommand creates the models command.
func NewModelsCommand(rootOpts *RootOptions) *cobra.Command {
	var mk string
	cmd := &cobra.Command{
		Use:           "models --make <make>",
		Short:         "List the models recorded for a make",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(rootOpts, cmd)
			eng, err := newEngine(rootOpts, cmd)
			if err != nil {
				return f.Failure(GetExitCode(err), "credentials", err)
			}
			models, err := eng.svc.GetModels(cmd.Context(), eng.cred, mk)
			if err != nil {
				return f.Failure(lookupExitCode(err), "models lookup failed", err)
			}
			return f.Success(models, writeLines(models))
		},
	}
	cmd.Flags().StringVar(&mk, "make", "", "vehicle make")
	return cmd
}

// NewYearsCommand creates the years command.
func NewYearsCommand(rootOpts *RootOptions) *cobra.Command {
	var mk, mdl string
	cmd := &cobra.Command{
		Use:           "years --make <make> --model <model>",
		Short:         "List the year ranges recorded for a make and model",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(rootOpts, cmd)
			eng, err := newEngine(rootOpts, cmd)
			if err != nil {
				return f.Failure(GetExitCode(err), "credentials", err)
			}
			sum, err := eng.svc.GetYearRanges(cmd.Context(), eng.cred, mk, mdl)
			if err != nil {
				return f.Failure(lookupExitCode(err), "years lookup failed", err)
			}
			return f.Success(sum, func(w io.Writer) {
				for _, r := range sum.Ranges {
					fmt.Fprintf(w, "%s-%s\n", bound(r.Start), bound(r.End))
				}
				if len(sum.Years) > 0 {
					parts := make([]string, len(sum.Years))
					for i, y := range sum.Years {
						parts[i] = fmt.Sprint(y)
					}
					fmt.Fprintf(w, "years: %s\n", strings.Join(parts, " "))
				}
			})
		},
	}
	cmd.Flags().StringVar(&mk, "make", "", "vehicle make")
	cmd.Flags().StringVar(&mdl, "model", "", "vehicle model")
	return cmd
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		q           model.CompatibilityQuery
		page, limit int
	)
	cmd := &cobra.Command{
		Use:           "search --year <year> --make <make> --model <model>",
		Short:         "List the items compatible with one vehicle",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(rootOpts, cmd)
			eng, err := newEngine(rootOpts, cmd)
			if err != nil {
				return f.Failure(GetExitCode(err), "credentials", err)
			}
			res, err := eng.svc.SearchCompatible(cmd.Context(), eng.cred, q, page, limit)
			if err != nil {
				return f.Failure(lookupExitCode(err), "search failed", err)
			}
			return f.Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "total: %d  page: %d  limit: %d\n", res.Total, res.Page, res.Limit)
				if res.Truncated {
					fmt.Fprintln(w, "warning: catalog walk was incomplete, results may be partial")
				}
				writeRecords(w, res.Items)
			})
		},
	}
	cmd.Flags().IntVar(&q.Year, "year", 0, "model year")
	cmd.Flags().StringVar(&q.Make, "make", "", "vehicle make")
	cmd.Flags().StringVar(&q.Model, "model", "", "vehicle model")
	cmd.Flags().IntVar(&page, "page", 1, "result page")
	cmd.Flags().IntVar(&limit, "limit", 50, "results per page")
	return cmd
}

// NewSessionCommand creates the session command, which signs a session
// cookie value for a store hash.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		secret string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:           "session",
		Short:         "Issue a signed " + credential.SessionCookie + " cookie value for --store",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(rootOpts, cmd)
			if rootOpts.StoreHash == "" {
				return f.Failure(ExitCommandError, "session", errors.New("--store is required"))
			}
			token, err := credential.IssueSession([]byte(secret), rootOpts.StoreHash, ttl)
			if err != nil {
				return f.Failure(ExitCommandError, "session", err)
			}
			return f.Success(map[string]string{"cookie": credential.SessionCookie, "value": token}, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("SESSION_SECRET"), "session signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "session lifetime")
	return cmd
}

func lookupExitCode(err error) int {
	var ve *compat.ValidationError
	if errors.As(err, &ve) {
		return ExitCommandError
	}
	return ExitFailure
}

func writeLines(lines []string) func(io.Writer) {
	return func(w io.Writer) {
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}
}

func writeRecords(w io.Writer, records []model.YmmRecord) {
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s-%s",
			r.ItemID, r.Name, deref(r.Make), deref(r.Model), bound(r.YearStart), bound(r.YearEnd))
		if r.MatchedBy != "" {
			fmt.Fprintf(w, "\t%s", r.MatchedBy)
		}
		fmt.Fprintln(w)
	}
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func bound(y *int) string {
	if y == nil {
		return "?"
	}
	return fmt.Sprint(*y)
}
