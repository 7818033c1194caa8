package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/JonMunkholm/sheetdesk/internal/codec"
	"github.com/JonMunkholm/sheetdesk/internal/config"
	"github.com/JonMunkholm/sheetdesk/internal/core"
	"github.com/JonMunkholm/sheetdesk/internal/logging"
	"github.com/spf13/cobra"
)

// app holds the state shared by every subcommand.
type app struct {
	codec     *codec.Codec
	logLevel  string
	logFormat string
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "sheetctl",
		Short:        "Inspect, search and restructure .xlsx workbooks",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (default: LOG_LEVEL)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: text or json (default: LOG_FORMAT)")

	root.AddCommand(
		a.sheetsCommand(),
		a.searchCommand(),
		a.renameCommand(),
		a.addCommand(),
		a.removeCommand(),
	)
	return root
}

// setup loads configuration and logging. Flags override the environment.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, format := cfg.Logging.Level, cfg.Logging.Format
	if a.logLevel != "" {
		level = a.logLevel
	}
	if a.logFormat != "" {
		format = a.logFormat
	}
	slog.SetDefault(logging.New(level, format, cmd.ErrOrStderr()))

	a.codec = codec.New(codec.Options{
		UnzipSizeLimit:    cfg.Upload.UnzipSizeLimit,
		UnzipXMLSizeLimit: cfg.Upload.UnzipXMLSizeLimit,
	})
	return nil
}

func (a *app) sheetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sheets FILE",
		Short: "List the sheets of a workbook in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wb, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer wb.Close()
			for _, name := range wb.SheetNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func (a *app) searchCommand() *cobra.Command {
	var (
		column string
		mode   string
		sheet  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search FILE QUERY",
		Short: "Find rows containing QUERY across every sheet",
		Long: `Search every sheet, or only --sheet, for rows containing QUERY.

In name mode (the default) QUERY is matched as a case-insensitive substring.
In number mode QUERY must be a whole number and is matched against the
cell's digits. Results carry an Origin column naming their sheet.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := core.ParseSearchMode(mode)
			if err != nil {
				return err
			}
			wb, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer wb.Close()

			var hits *core.Table
			if sheet != "" {
				t, err := wb.Table(sheet)
				if err != nil {
					return err
				}
				hits, err = core.Search(t, args[1], column, m)
				if err != nil {
					return err
				}
			} else {
				hits, err = core.SearchAcrossWorkbook(wb, args[1], column, m)
				if err != nil {
					return err
				}
			}

			slog.Debug("search finished", "query", args[1], "mode", m, "matches", hits.Len())
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(hits)
			}
			if hits.Len() == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no matches")
				return nil
			}
			return printTable(cmd.OutOrStdout(), hits)
		},
	}
	cmd.Flags().StringVar(&column, "column", core.AllColumns, "Only match this column")
	cmd.Flags().StringVar(&mode, "mode", string(core.ModeName), "Search mode: name or number")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Only search this sheet")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print matches as JSON")
	return cmd
}

func (a *app) renameCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "rename FILE OLD NEW",
		Short: "Rename a sheet and write the workbook to -o",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.restructure(args[0], out, func(wb *core.Workbook) (*core.Workbook, error) {
				return core.RenameSheet(wb, args[1], args[2])
			})
		},
	}
	outputFlag(cmd, &out)
	return cmd
}

func (a *app) addCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "add FILE NAME",
		Short: "Append an empty sheet and write the workbook to -o",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.restructure(args[0], out, func(wb *core.Workbook) (*core.Workbook, error) {
				return core.AddSheet(wb, args[1])
			})
		},
	}
	outputFlag(cmd, &out)
	return cmd
}

func (a *app) removeCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "remove FILE NAME",
		Short: "Remove a sheet and write the workbook to -o",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.restructure(args[0], out, func(wb *core.Workbook) (*core.Workbook, error) {
				return core.RemoveSheet(wb, args[1])
			})
		},
	}
	outputFlag(cmd, &out)
	return cmd
}

func outputFlag(cmd *cobra.Command, out *string) {
	cmd.Flags().StringVarP(out, "output", "o", "", "Output file path (required)")
	_ = cmd.MarkFlagRequired("output")
}

func (a *app) open(path string) (*core.Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	src, err := a.codec.Decode(data)
	if err != nil {
		return nil, err
	}
	wb, err := core.NewWorkbook(src)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return wb, nil
}

// restructure applies op to the workbook at in and writes the result to out.
func (a *app) restructure(in, out string, op func(*core.Workbook) (*core.Workbook, error)) error {
	wb, err := a.open(in)
	if err != nil {
		return err
	}
	defer wb.Close()
	next, err := op(wb)
	if err != nil {
		return err
	}
	sheets, err := next.Sheets()
	if err != nil {
		return err
	}
	data, err := a.codec.Encode(sheets)
	if err != nil {
		return fmt.Errorf("encode workbook: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	slog.Info("workbook written", "file", out, "sheets", next.Len())
	return nil
}

// printTable writes t as tab-aligned columns.
func printTable(w io.Writer, t *core.Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, c := range t.Columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, c)
	}
	fmt.Fprintln(tw)
	for i := range t.Rows {
		for j, c := range t.Columns {
			if j > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, t.Cell(i, c).String())
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
