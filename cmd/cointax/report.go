package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Veraticus/cointax/internal/cli"
	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/config"
	"github.com/Veraticus/cointax/internal/engine"
	"github.com/Veraticus/cointax/internal/report"
	"github.com/Veraticus/cointax/internal/sheets"
	"github.com/spf13/cobra"
)

func reportCmd() *cobra.Command {
	var (
		format string
		output string
		export string
		token  string
		year   int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report capital gains from the latest calculation",
		Example: `  cointax report --year 2023
  cointax report --year 2023 --format 8949 --output 8949.csv
  cointax report --year 2023 --export sheets`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsedFormat, err := report.ParseFormat(format)
			if err != nil {
				return common.NewUserError(err.Error(), err)
			}
			export = strings.ToLower(strings.TrimSpace(export))
			if export != "" && export != "sheets" {
				return common.NewUserError(fmt.Sprintf("unknown export target %q (want sheets)", export), common.ErrInvalidConfig)
			}

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStorage(store)

			result, err := engine.New(store, nil, nil, engine.Config{}).Report(cmd.Context(), engine.ReportRequest{
				Year:        optionalYear(year),
				TokenSymbol: token,
			})
			if err != nil {
				return err
			}
			if !result.Success {
				return resultError(result.Result)
			}

			if err := writeReport(cmd.OutOrStdout(), output, parsedFormat, result.Document); err != nil {
				return err
			}
			if parsedFormat != report.FormatSummary {
				printWarnings(cmd.ErrOrStderr(), result.Warnings)
			}

			if export == "sheets" {
				return exportToSheets(cmd, result)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", string(report.FormatSummary), "output format: summary, csv, 8949, json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().StringVar(&export, "export", "", "also export to: sheets")
	cmd.Flags().StringVar(&token, "token", "", "only report gains for this token")
	cmd.Flags().IntVar(&year, "year", 0, "tax year to report (default: all years)")

	return cmd
}

func writeReport(stdout io.Writer, path string, format report.Format, doc report.Document) error {
	if path == "" {
		return report.Render(stdout, format, doc)
	}

	f, err := os.Create(config.ExpandPath(path))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := report.Render(f, format, doc); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintln(stdout, cli.FormatSuccess(fmt.Sprintf("Report written to %s", path)))
	return nil
}

func exportToSheets(cmd *cobra.Command, result *engine.ReportResult) error {
	sheetsConfig, err := config.LoadSheetsConfig()
	if err != nil {
		return common.NewUserError("Google Sheets is not configured. Run 'cointax auth sheets' or set a service account.", err)
	}

	writer, err := sheets.NewWriter(cmd.Context(), *sheetsConfig, slog.Default())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cli.FormatInfo("Exporting to Google Sheets..."))

	url, err := writer.Write(cmd.Context(), sheets.BuildTabData(result.Document, result.Transactions, result.Lots))
	if err != nil {
		return fmt.Errorf("failed to export to Google Sheets: %w", err)
	}

	fmt.Fprintln(out, cli.FormatSuccess("Exported to "+url))
	return nil
}
