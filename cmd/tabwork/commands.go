package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tabwork/internal/clean"
	"github.com/JonMunkholm/tabwork/internal/dialect"
	"github.com/JonMunkholm/tabwork/internal/join"
	"github.com/JonMunkholm/tabwork/internal/summary"
	"github.com/JonMunkholm/tabwork/internal/table"
)

// load parses a local file. Parse warnings go to the log.
func load(path string, opts dialect.Options, limit int) (*table.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	res, err := dialect.Parse(data, opts, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, w := range res.Warnings {
		slog.Warn("record dropped", "file", path, "line", w.Line, "reason", w.Message)
	}
	return res.Table, nil
}

// writeOutput writes t as CSV to path, or to w when path is empty.
func writeOutput(w io.Writer, path string, t *table.Table) error {
	if path == "" {
		return t.WriteCSV(w)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// printTable writes t as aligned columns. Null cells print as empty.
func printTable(w io.Writer, t *table.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Columns, "\t"))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = v.String()
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func newPreviewCommand(g *globalOptions) *cobra.Command {
	var rows int
	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Show the first rows of a file parsed with the given dialect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := load(args[0], g.parseOptions(), rows)
			if err != nil {
				return err
			}
			return printTable(cmd.OutOrStdout(), t)
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", 20, "number of data rows to show")
	return cmd
}

func newCleanCommand(g *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "clean FILE",
		Short: "Trim, deduplicate and flag a file, writing CSV",
		Long: `clean trims text cells, removes exact duplicate rows and adds an
inconsistency_flag column marking rows with numeric outliers or missing
critical values. The cleaned table is written as comma-separated CSV.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := load(args[0], g.parseOptions(), 0)
			if err != nil {
				return err
			}
			out, rep := clean.Clean(t, slog.Default())
			if err := writeOutput(cmd.OutOrStdout(), output, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s rows, %d duplicates removed, %d flagged\n",
				humanize.Comma(int64(out.Len())), rep.DuplicatesRemoved, rep.Flagged)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write CSV here instead of stdout")
	return cmd
}

func newSummaryCommand(g *globalOptions) *cobra.Command {
	var column string
	cmd := &cobra.Command{
		Use:   "summary FILE",
		Short: "Summarize one column as a histogram or value counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := load(args[0], g.parseOptions(), 0)
			if err != nil {
				return err
			}
			s, err := summary.Summarize(t, column)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "%s\t%s\n", column, s.Type)
			for i, label := range s.Labels {
				fmt.Fprintf(tw, "%s\t%d\n", label, s.Data[i])
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&column, "column", "c", "", "column to summarize")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func newJoinCommand(g *globalOptions) *cobra.Command {
	var (
		spec    = join.Spec{Mode: join.Inner}
		mode    string
		force   bool
		maxRows int64
		output  string
	)
	cmd := &cobra.Command{
		Use:   "join FILE_A FILE_B",
		Short: "Join or compare two files on one key column each",
		Long: `join combines FILE_A and FILE_B on --left and --right. Both files
are cleaned first. With --compare the result keeps only rows without a
partner and marks the side they came from.

A join whose estimated size exceeds --max-rows is refused unless --force
is given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Mode = join.Mode(mode)

			var sides [2]*table.Table
			for i, path := range args {
				t, err := load(path, g.parseOptions(), 0)
				if err != nil {
					return err
				}
				sides[i], _ = clean.Clean(t, slog.Default().With("file", path))
			}

			res, err := join.Run(sides[0], sides[1], spec, join.Options{Force: force, MaxRows: maxRows})
			if err != nil {
				return err
			}
			if res.Status == join.StatusConfirm {
				return fmt.Errorf("%s; rerun with --force to continue", res.Message)
			}
			if err := writeOutput(cmd.OutOrStdout(), output, res.Table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s rows\n", humanize.Comma(int64(res.Table.Len())))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&spec.LeftColumn, "left", "", "key column in FILE_A")
	flags.StringVar(&spec.RightColumn, "right", "", "key column in FILE_B")
	flags.StringVarP(&mode, "mode", "m", string(join.Inner), "inner, left, right or outer")
	flags.BoolVar(&spec.Compare, "compare", false, "report rows unique to either file")
	flags.BoolVar(&force, "force", false, "run even when the estimated result is large")
	flags.Int64Var(&maxRows, "max-rows", join.DefaultMaxRows, "estimated rows that require --force")
	flags.StringVarP(&output, "output", "o", "", "write CSV here instead of stdout")
	_ = cmd.MarkFlagRequired("left")
	_ = cmd.MarkFlagRequired("right")
	return cmd
}
