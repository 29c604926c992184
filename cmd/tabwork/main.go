// Command tabwork runs the parsing, cleaning, summary and join engine on
// local CSV files without the web service.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tabwork/internal/dialect"
	"github.com/JonMunkholm/tabwork/internal/logging"
)

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	parse     dialect.Options
	noHeader  bool
	logLevel  string
	logFormat string
}

func (g *globalOptions) parseOptions() dialect.Options {
	o := g.parse
	o.HasHeader = !g.noHeader
	return o
}

func newRootCommand() *cobra.Command {
	g := &globalOptions{parse: dialect.DefaultOptions()}

	root := &cobra.Command{
		Use:   "tabwork",
		Short: "Parse, clean, summarize and join delimited files",
		Long: `tabwork reads delimited text files with an explicit dialect
(encoding, delimiter, quote character, header row, skipped rows), cleans
them, summarizes columns and joins or compares two files.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), g.logLevel, g.logFormat))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.parse.Encoding, "encoding", g.parse.Encoding, "text encoding of the input files")
	flags.StringVarP(&g.parse.Delimiter, "delimiter", "d", g.parse.Delimiter, `field delimiter; \t or tab for tabs`)
	flags.StringVar(&g.parse.QuoteChar, "quotechar", g.parse.QuoteChar, "quote character; empty disables quoting")
	flags.BoolVar(&g.noHeader, "no-header", false, "the first row is data, not column names")
	flags.IntVar(&g.parse.SkipRows, "skip-rows", 0, "lines to skip before the header")
	flags.StringVar(&g.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flags.StringVar(&g.logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(
		newPreviewCommand(g),
		newCleanCommand(g),
		newSummaryCommand(g),
		newJoinCommand(g),
	)
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
