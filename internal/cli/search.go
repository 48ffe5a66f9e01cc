package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/colsearch/internal/core"
	"github.com/JonMunkholm/colsearch/internal/export"
	"github.com/JonMunkholm/colsearch/internal/match"
	"github.com/JonMunkholm/colsearch/internal/tabular"
)

type searchFlags struct {
	root    string
	column  string
	terms   []string
	mode    string
	types   []string
	exclude []string
	out     string
	json    bool
	quiet   bool
}

func newSearchCmd(a *app) *cobra.Command {
	f := &searchFlags{}
	cmd := &cobra.Command{
		Use:     "search [term...]",
		Short:   "Search one column across a folder",
		GroupID: groupSearch,
		Long: `Search one named column in every CSV, TSV, TXT and XLSX file under a
folder. Text files without that column are matched line by line instead.

Terms come from --term flags and positional arguments. Matching is a
case-insensitive substring test; --mode all requires every term in the
same cell.

Examples:
  colsearch search --root ./exports --column zip 895 894
  colsearch search --root . --column status --term error --term fatal --mode any
  colsearch search --root . --column city --types csv,xlsx --out matches.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, a, f, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.root, "root", "r", ".", "folder to search")
	flags.StringVarP(&f.column, "column", "c", "", "column name to match (required)")
	flags.StringArrayVarP(&f.terms, "term", "t", nil, "search term (repeatable)")
	flags.StringVarP(&f.mode, "mode", "m", string(match.ModeAny), "any or all")
	flags.StringSliceVar(&f.types, "types", nil, "file extensions to include (default from SEARCH_FILE_TYPES)")
	flags.StringArrayVar(&f.exclude, "exclude", nil, "glob of paths to skip, relative to the root (repeatable)")
	flags.StringVarP(&f.out, "out", "o", "", "write all matches to this .csv or .xlsx file")
	flags.BoolVar(&f.json, "json", false, "print the result as JSON")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "do not print progress")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func runSearch(cmd *cobra.Command, a *app, f *searchFlags, args []string) error {
	req := core.SearchRequest{
		Root:      f.root,
		Column:    f.column,
		Terms:     append(append([]string{}, f.terms...), args...),
		Mode:      match.Mode(strings.ToLower(f.mode)),
		FileTypes: f.types,
		Exclude:   f.exclude,
	}

	opts := core.RunOptions{Sniff: a.sniffOptions()}
	if a.cfg != nil {
		opts.MaxFileSize = a.cfg.Search.MaxFileSize
		opts.DefaultFileTypes = a.cfg.Search.FileTypes
	}

	var notify func(core.RunProgress)
	if !f.quiet && !f.json {
		notify = progressPrinter(cmd.ErrOrStderr())
	}

	res, err := core.Search(cmd.Context(), req, opts, notify)
	if notify != nil {
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	if res != nil && (err == nil || len(res.Files) > 0) {
		if perr := printResult(cmd.OutOrStdout(), res, f.json); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}

	if f.out != "" {
		n, err := export.Write(f.out, res.Results)
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "no matches, nothing exported")
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d rows to %s\n", n, f.out)
		}
	}
	return nil
}

// progressPrinter redraws a one-line progress indicator.
func progressPrinter(w io.Writer) func(core.RunProgress) {
	return func(p core.RunProgress) {
		if p.Phase != core.PhaseScanning || p.FilesTotal == 0 {
			return
		}
		fmt.Fprintf(w, "\r%3d%%  %d/%d files  %d matches", p.Percent(), p.FilesDone, p.FilesTotal, p.Matches)
	}
}

func printResult(w io.Writer, res *core.RunResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATUS\tMATCHES\tENCODING\tDELIMITER\tNOTE")
	for _, f := range res.Files {
		note := f.Error
		if f.Fallback {
			note = "matched as text lines"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", f.Path, f.Status, f.Matches, f.Encoding, f.Delimiter, note)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := res.Summary()
	_, err := fmt.Fprintf(w, "\n%s: %d matches in %d of %d files (%d skipped or failed) in %s\n",
		res.Phase, s.Matches, s.FilesMatched, s.FilesScanned, s.FilesFailed, res.Duration.Round(time.Millisecond))
	return err
}

func newLinesCmd(a *app) *cobra.Command {
	var terms []string
	cmd := &cobra.Command{
		Use:     "lines <file>",
		Short:   "Match the lines of a text file",
		GroupID: groupSearch,
		Long: `Print every line of a text file containing any of the terms, with its
1-based line number. The file encoding is detected first.

Examples:
  colsearch lines app.log --term error --term timeout`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			terms = match.NormalizeTerms(terms)
			if len(terms) == 0 {
				return &core.ValidationError{Field: "terms", Message: "at least one search term is required", Code: "VAL003"}
			}

			path := args[0]
			sn := tabular.SniffWith(path, a.sniffOptions())
			lines, _, err := match.LinesContext(cmd.Context(), path, sn.Encoding, terms, match.ModeAny)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, l := range lines {
				fmt.Fprintf(out, "%d: %s\t[%s]\n", l.Number, l.Text, strings.Join(l.MatchedTerms, ", "))
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d matching lines (%s)\n", len(lines), sn.Encoding)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&terms, "term", "t", nil, "search term (repeatable)")
	return cmd
}

func newSniffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "sniff <file>...",
		Short:   "Detect the encoding and delimiter of files",
		GroupID: groupSearch,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tENCODING\tDELIMITER")
			for _, path := range args {
				sn := tabular.SniffWith(path, a.sniffOptions())
				fmt.Fprintf(tw, "%s\t%s\t%s\n", path, sn.Encoding, sn.DelimiterName())
			}
			return tw.Flush()
		},
	}
}
