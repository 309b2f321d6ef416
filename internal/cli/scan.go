package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/scanwatch/scanwatch/internal/api"
	"github.com/scanwatch/scanwatch/internal/live"
	"github.com/scanwatch/scanwatch/internal/render"
	"github.com/scanwatch/scanwatch/internal/stream"
)

var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Submit a URL for scanning and follow the live output",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

var watchCmd = &cobra.Command{
	Use:   "watch <scan-id>",
	Short: "Attach to the live output of an existing scan",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)

	scanCmd.Flags().Bool("no-follow", false, "Start the scan and exit without watching")
	scanCmd.Flags().Bool("metrics", false, "Print a metrics line for every progress event")
	watchCmd.Flags().Bool("metrics", false, "Print a metrics line for every progress event")
}

func runScan(cmd *cobra.Command, args []string) error {
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

	sc, err := client.StartScan(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("start scan: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Scan started: %s\n", sc.ID)

	if noFollow, _ := cmd.Flags().GetBool("no-follow"); noFollow {
		return nil
	}
	return watchScan(cmd, client, logger, sc.ID)
}

func runWatch(cmd *cobra.Command, args []string) error {
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
	return watchScan(cmd, client, logger, args[0])
}

// watchScan runs the live watcher until the scan ends, then renders the
// report if one was produced. CTRL+C detaches cleanly without affecting the
// server-side scan.
func watchScan(cmd *cobra.Command, client *api.Client, logger *logrus.Logger, scanID string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	renderer := render.NewLive(cmd.OutOrStdout())
	renderer.ShowMetrics, _ = cmd.Flags().GetBool("metrics")

	transport := stream.NewTransport(stream.Options{
		BaseURL: wsBase(cmd),
		Logger:  logger,
	})

	watcher := live.New(live.Options{
		API:       client,
		Transport: transport,
		Renderer:  renderer,
		Logger:    logger,
	})

	report, err := watcher.Run(ctx, scanID)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			fmt.Fprintln(cmd.OutOrStdout(), "Detached. The scan keeps running server-side.")
			return nil
		}
		return err
	}
	if report == nil {
		return nil
	}

	format, _ := cmd.Flags().GetString("format")
	writer, err := render.New(format)
	if err != nil {
		return err
	}
	return writer.WriteReport(ctx, report, cmd.OutOrStdout())
}
