/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/mautops/results-gin/internal/container"
	"github.com/mautops/results-gin/internal/service"
	"github.com/spf13/cobra"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a student's results",
	Long: `Export a student's results as CSV or XLSX.
Only visible results are exported unless --all is given.
Output goes to stdout when --output is empty.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		studentID, _ := cmd.Flags().GetString("student")
		format, _ := cmd.Flags().GetString("format")
		all, _ := cmd.Flags().GetBool("all")
		output, _ := cmd.Flags().GetString("output")

		if format != "csv" && format != "xlsx" {
			return fmt.Errorf("unsupported format %q, use csv or xlsx", format)
		}
		if format == "xlsx" && output == "" {
			return fmt.Errorf("--output is required for xlsx")
		}

		cfg, err := LoadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		ctr, err := container.NewContainer(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		ctx := cmd.Context()
		records, err := ctr.QueryService().GetStudentResults(ctx, studentID, service.SummaryFilter{IncludeHidden: all})
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		if format == "xlsx" {
			buf, err := ctr.ExportService().ExportXLSX(ctx, records)
			if err != nil {
				return err
			}
			_, err = buf.WriteTo(w)
			return err
		}
		return ctr.ExportService().ExportCSV(ctx, w, records)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("student", "", "Student ID")
	exportCmd.Flags().String("format", "csv", "Export format: csv or xlsx")
	exportCmd.Flags().Bool("all", false, "Include results not yet visible to the student")
	exportCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	_ = exportCmd.MarkFlagRequired("student")
}
