// Package cli wires the scanwatch commands: authentication, starting and
// watching scans, listing history, and fetching reports.
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/scanwatch/scanwatch/internal/api"
	"github.com/scanwatch/scanwatch/internal/store"
)

// Version information (set by build flags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "scanwatch",
	Short: "Terminal client for the webscan security scanning platform",
	Long: `scanwatch - terminal client for the webscan security scanning platform

Submit URLs for scanning, follow the live multi-phase scan output
(DNS, SSL, performance, DAST, SEO) in your terminal, and fetch the
AI-generated report once the scan completes.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)

	// Endpoint flags
	rootCmd.PersistentFlags().String("api-url", envOr("SCANWATCH_API_URL", "http://localhost:8000"),
		"Platform base URL")
	rootCmd.PersistentFlags().String("ws-url", os.Getenv("SCANWATCH_WS_URL"),
		"WebSocket base URL (derived from --api-url if empty)")

	// Local state
	rootCmd.PersistentFlags().String("db", "", "Local database path (default: per-user config dir)")

	// Connection flags
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "Request timeout")

	// Output flags
	rootCmd.PersistentFlags().IntP("verbose", "v", 0, "Verbosity level (0-2)")
	rootCmd.PersistentFlags().StringP("format", "f", "text", "Output format (text, json)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scanwatch %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

// envOr returns the environment value for key, or fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// buildLogger maps the verbosity flag to a logrus logger. Level 2 switches to
// JSON output for machine consumption of diagnostics.
func buildLogger(cmd *cobra.Command) *logrus.Logger {
	verbose, _ := cmd.Flags().GetInt("verbose")

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	switch {
	case verbose >= 2:
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetLevel(logrus.DebugLevel)
	case verbose == 1:
		logger.SetLevel(logrus.DebugLevel)
	default:
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

// openStore opens the local database from the --db flag or the default
// per-user path.
func openStore(cmd *cobra.Command) (*store.SQLiteStore, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return store.Open(dbPath)
}

// buildClient creates the REST client wired to the local credential store.
func buildClient(cmd *cobra.Command, st *store.SQLiteStore, logger *logrus.Logger) (*api.Client, error) {
	apiURL, _ := cmd.Flags().GetString("api-url")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	return api.NewClient(api.Options{
		BaseURL:     apiURL,
		Credentials: st,
		Timeout:     timeout,
		Logger:      logger,
	})
}

// wsBase returns the WebSocket base URL, deriving it from the API URL when
// --ws-url is not set (http -> ws, https -> wss).
func wsBase(cmd *cobra.Command) string {
	wsURL, _ := cmd.Flags().GetString("ws-url")
	if wsURL != "" {
		return strings.TrimRight(wsURL, "/")
	}
	apiURL, _ := cmd.Flags().GetString("api-url")
	apiURL = strings.TrimRight(apiURL, "/")
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://")
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://")
	}
	return apiURL
}
