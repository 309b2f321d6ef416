package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scanwatch/scanwatch/internal/api"
	"github.com/scanwatch/scanwatch/internal/render"
)

var reportCmd = &cobra.Command{
	Use:   "report <scan-id>",
	Short: "Fetch the finalized report for a scan",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("pdf", "", "Download the PDF rendition to the given path")
	reportCmd.Flags().String("email", "", "Email the report to the given address")
}

func runReport(cmd *cobra.Command, args []string) error {
	logger := buildLogger(cmd)
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := buildClient(cmd, st, logger)
	if err != nil {
		return err
	}

	scanID := args[0]
	ctx := cmd.Context()

	if pdfPath, _ := cmd.Flags().GetString("pdf"); pdfPath != "" {
		f, err := os.Create(pdfPath)
		if err != nil {
			return fmt.Errorf("create %q: %w", pdfPath, err)
		}
		defer f.Close()

		if err := client.DownloadPDF(ctx, scanID, f); err != nil {
			return fmt.Errorf("download pdf: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved PDF report to %s\n", pdfPath)
		return nil
	}

	if email, _ := cmd.Flags().GetString("email"); email != "" {
		if err := client.EmailReport(ctx, scanID, email); err != nil {
			return fmt.Errorf("email report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report sent to %s\n", email)
		return nil
	}

	report, err := client.GetReport(ctx, scanID)
	if errors.Is(err, api.ErrNotFound) {
		return fmt.Errorf("no report exists for scan %s (is the scan complete?)", scanID)
	}
	if err != nil {
		return fmt.Errorf("fetch report: %w", err)
	}

	format, _ := cmd.Flags().GetString("format")
	writer, err := render.New(format)
	if err != nil {
		return err
	}
	return writer.WriteReport(ctx, report, cmd.OutOrStdout())
}
