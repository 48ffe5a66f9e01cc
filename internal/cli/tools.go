package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/colsearch/internal/core"
	"github.com/JonMunkholm/colsearch/internal/logging"
	"github.com/JonMunkholm/colsearch/internal/reformat"
	"github.com/JonMunkholm/colsearch/internal/tabular"
	"github.com/JonMunkholm/colsearch/internal/tools"
	"github.com/JonMunkholm/colsearch/internal/zipstate"
)

func newZipCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "zip <zip>...",
		Short:   "Look up the state of US zip codes",
		GroupID: groupTools,
		Example: "  colsearch zip 89501 10001-1234 501",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, raw := range args {
				state, ok := zipstate.Lookup(raw)
				if !ok {
					state = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\n", raw, state)
			}
			return tw.Flush()
		},
	}
}

func newHeatmapCmd(a *app) *cobra.Command {
	var column string
	cmd := &cobra.Command{
		Use:     "heatmap <file>",
		Short:   "Count the zip codes of a column per state",
		GroupID: groupTools,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := zipstate.HeatmapFile(args[0], column, a.sniffOptions())
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), h.String())
			return err
		},
	}
	cmd.Flags().StringVarP(&column, "column", "c", "zip", "column holding zip codes")
	return cmd
}

func newReformatCmd(a *app) *cobra.Command {
	var (
		dateCols  []string
		outFormat string
		delimiter string
		out       string
	)
	cmd := &cobra.Command{
		Use:     "reformat <file>",
		Short:   "Rewrite date columns and the delimiter of a delimited file",
		GroupID: groupTools,
		Long: `Load a delimited text file, rewrite the cells of the date columns into
one output format and write the file with a new delimiter. Cells that do not
parse as dates are left as they are.

Examples:
  colsearch reformat orders.csv --date-col shipped --out-format MM/DD/YYYY --out orders.txt
  colsearch reformat export.txt --delimiter comma --out export.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			opts := reformat.Options{DateColumns: dateCols, OutputLayout: outFormat}
			if delimiter != "" {
				d, ok := tabular.ParseDelimiter(delimiter)
				if !ok {
					return &core.ValidationError{Field: "delimiter", Value: delimiter, Message: "must be tab, comma, pipe, semicolon or one character", Code: "VAL004"}
				}
				opts.Delimiter = d
			}
			if out == "" {
				return &core.ValidationError{Field: "out", Message: "an output path is required", Code: "VAL004"}
			}

			rep, err := reformat.File(in, out, opts, a.sniffOptions())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s: %d rows, %d dates converted, %d left unparsed\n",
				rep.InputPath, rep.OutputPath, rep.Rows, rep.Converted, rep.Unparsed)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringArrayVar(&dateCols, "date-col", nil, "date column to reformat (repeatable)")
	flags.StringVar(&outFormat, "out-format", "", "output date format, e.g. YYYY-MM-DD or a Go layout (default ISO date)")
	flags.StringVarP(&delimiter, "delimiter", "d", "", "output delimiter: tab, comma, pipe, semicolon or one character (default: keep)")
	flags.StringVarP(&out, "out", "o", "", "output file (required)")
	return cmd
}

func newBase64Cmd() *cobra.Command {
	var urlSafe bool
	cmd := &cobra.Command{
		Use:     "base64 encode|decode [text]",
		Short:   "Encode or decode Base64",
		GroupID: groupTools,
		Long: `Encode or decode Base64. The text comes from the argument or, when
omitted, from standard input.

Examples:
  colsearch base64 encode "hello world"
  echo aGVsbG8 | colsearch base64 decode`,
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"encode", "decode"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var input []byte
			if len(args) == 2 {
				input = []byte(args[1])
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				input = b
			}

			out := cmd.OutOrStdout()
			switch args[0] {
			case "encode":
				if len(input) == 0 {
					return tools.ErrEmptyInput
				}
				fmt.Fprintln(out, tools.Base64Encode(input, urlSafe))
			case "decode":
				b, err := tools.Base64Decode(string(input), urlSafe)
				if err != nil {
					return err
				}
				out.Write(b)
			default:
				return fmt.Errorf("unknown operation %q (want encode or decode)", args[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&urlSafe, "url", false, "use the URL-safe alphabet")
	return cmd
}

func newCronJobCmd() *cobra.Command {
	var (
		spec    tools.CronJobSpec
		env     []string
		out     string
		backoff int
	)
	cmd := &cobra.Command{
		Use:     "cronjob",
		Short:   "Generate a Kubernetes CronJob manifest",
		GroupID: groupTools,
		Example: `  colsearch cronjob --name dlq-replay --schedule "0 2 * * *" --image registry.local/dlq:1.4 \
    --command java --command -jar --command /app/replay.jar --env LOG_LEVEL=info`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, kv := range env {
				name, value, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("env %q: want NAME=value", kv)
				}
				spec.Env = append(spec.Env, tools.EnvVar{Name: name, Value: value})
			}
			if cmd.Flags().Changed("backoff-limit") {
				spec.BackoffLimit = &backoff
			}

			manifest, err := tools.GenerateCronJob(spec)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(manifest)
				return err
			}
			if err := os.WriteFile(out, manifest, 0o644); err != nil {
				return fmt.Errorf("write manifest: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&spec.Name, "name", "", "job name (DNS label)")
	flags.StringVar(&spec.Namespace, "namespace", "", "namespace (default: default)")
	flags.StringVar(&spec.Schedule, "schedule", "", "cron schedule, five fields or a macro such as @daily")
	flags.StringVar(&spec.TimeZone, "time-zone", "", "IANA time zone for the schedule")
	flags.StringVar(&spec.Image, "image", "", "container image")
	flags.StringArrayVar(&spec.Command, "command", nil, "container command (repeatable)")
	flags.StringArrayVar(&spec.Args, "arg", nil, "container argument (repeatable)")
	flags.StringArrayVar(&env, "env", nil, "environment variable NAME=value (repeatable)")
	flags.StringVar(&spec.ConcurrencyPolicy, "concurrency", "", "Allow, Forbid or Replace (default: Forbid)")
	flags.StringVar(&spec.RestartPolicy, "restart", "", "OnFailure or Never (default: OnFailure)")
	flags.IntVar(&backoff, "backoff-limit", 0, "job backoff limit")
	flags.BoolVar(&spec.Suspend, "suspend", false, "create the CronJob suspended")
	flags.StringVarP(&out, "out", "o", "", "write the manifest to a file instead of stdout")
	return cmd
}

func newDLQCmd(a *app) *cobra.Command {
	var (
		jar     string
		javaBin string
		timeout time.Duration
		dir     string
		export  string
	)
	cmd := &cobra.Command{
		Use:     "dlq --jar <file> [-- args...]",
		Short:   "Run a dead-letter-queue replay JAR",
		GroupID: groupTools,
		Long: `Run a replay JAR with java -jar, streaming its output as it arrives.
Interrupting colsearch stops the JAR. The exit code of the JAR becomes the
exit code of this command.

Examples:
  colsearch dlq --jar replay.jar -- --topic orders --since 2h
  colsearch dlq --jar replay.jar --export replay-log.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if javaBin == "" && a.cfg != nil {
				javaBin = a.cfg.Tools.JavaBin
			}
			if !cmd.Flags().Changed("timeout") && a.cfg != nil {
				timeout = a.cfg.Tools.DLQTimeout
			}

			runner := tools.NewDLQRunner(javaBin, timeout, logging.FromContext(cmd.Context()))
			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			res, err := runner.Run(cmd.Context(), tools.DLQRequest{Jar: jar, Args: args, Dir: dir}, func(l tools.OutputLine) {
				if l.Stream == tools.StreamStderr {
					fmt.Fprintln(errOut, l.Text)
					return
				}
				fmt.Fprintln(out, l.Text)
			})
			if res != nil && export != "" {
				n, xerr := tools.ExportLines(export, res)
				if xerr != nil {
					return errors.Join(err, xerr)
				}
				fmt.Fprintf(errOut, "exported %d lines to %s\n", n, export)
			}
			if err != nil {
				return err
			}
			if res.Cancelled {
				return fmt.Errorf("dlq run: %w", core.ErrRunCancelled)
			}
			if res.ExitCode != 0 {
				return &ExitError{Code: res.ExitCode}
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&jar, "jar", "", "replay JAR to run (required)")
	flags.StringVar(&javaBin, "java", "", "java executable (default from DLQ_JAVA_BIN)")
	flags.DurationVar(&timeout, "timeout", 0, "stop the JAR after this long (default from DLQ_TIMEOUT)")
	flags.StringVar(&dir, "dir", "", "working directory for the JAR")
	flags.StringVar(&export, "export", "", "write the captured output to this .csv or .xlsx file")
	_ = cmd.MarkFlagRequired("jar")
	return cmd
}

// ExitError carries a child process exit code up to main.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exited with status %d", e.Code)
}
