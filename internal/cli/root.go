// Package cli implements the colsearch command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/colsearch/internal/config"
	"github.com/JonMunkholm/colsearch/internal/logging"
	"github.com/JonMunkholm/colsearch/internal/tabular"
)

const (
	groupSearch = "search"
	groupTools  = "tools"
)

// app carries state shared by every command.
type app struct {
	cfg       *config.Config
	logLevel  string
	logFormat string
}

// NewRootCmd builds the colsearch command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "colsearch",
		Short: "Search a column across folders of CSV, TXT and XLSX files",
		Long: `colsearch - multi-file column search and data-wrangling tools
  - search one column across a folder of mixed tabular files
  - fall back to line matching for plain text
  - export every match to one CSV or XLSX file`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg

			level, format := cfg.Logging.Level, cfg.Logging.Format
			if a.logLevel != "" {
				level = a.logLevel
			}
			if a.logFormat != "" {
				format = a.logFormat
			}
			logging.SetupWriter(cmd.ErrOrStderr(), level, format)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (default from LOG_LEVEL)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json (default from LOG_FORMAT)")

	root.AddGroup(
		&cobra.Group{ID: groupSearch, Title: "Search:"},
		&cobra.Group{ID: groupTools, Title: "Tools:"},
	)
	root.AddCommand(
		newSearchCmd(a),
		newLinesCmd(a),
		newSniffCmd(a),
		newZipCmd(),
		newHeatmapCmd(a),
		newReformatCmd(a),
		newBase64Cmd(),
		newCronJobCmd(),
		newDLQCmd(a),
	)
	return root
}

func (a *app) sniffOptions() tabular.SniffOptions {
	if a.cfg == nil {
		return tabular.SniffOptions{}
	}
	return tabular.SniffOptions{
		SampleBytes: a.cfg.Search.SniffBytes,
		SampleLines: a.cfg.Search.SniffLines,
	}
}
