package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scanwatch/scanwatch/internal/render"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your scans",
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <scan-id>",
	Short: "Delete a scan and its results",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)

	listCmd.Flags().Bool("cached", false, "Show the locally cached list without contacting the platform")
}

func runList(cmd *cobra.Command, args []string) error {
	logger := buildLogger(cmd)
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	format, _ := cmd.Flags().GetString("format")
	writer, err := render.New(format)
	if err != nil {
		return err
	}

	if cached, _ := cmd.Flags().GetBool("cached"); cached {
		scans, err := st.CachedScans(cmd.Context())
		if err != nil {
			return err
		}
		return writer.WriteScanList(cmd.Context(), scans, cmd.OutOrStdout())
	}

	client, err := buildClient(cmd, st, logger)
	if err != nil {
		return err
	}

	scans, err := client.ListScans(cmd.Context())
	if err != nil {
		return fmt.Errorf("list scans: %w", err)
	}
	if err := st.CacheScans(cmd.Context(), scans); err != nil {
		logger.WithError(err).Warn("failed to refresh local scan cache")
	}
	return writer.WriteScanList(cmd.Context(), scans, cmd.OutOrStdout())
}

func runDelete(cmd *cobra.Command, args []string) error {
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

	if err := client.DeleteScan(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete scan: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted scan %s\n", args[0])
	return nil
}
