package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hotradar",
		Short:         "Discover YouTube channels whose videos outperform their subscriber base",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(discoverCmd())
	root.AddCommand(channelsCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return fmt.Errorf("invalid --log-level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func discoverCmd() *cobra.Command {
	var (
		contentType string
		region      string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run discovery for a region and print HOT channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd.Context(), contentType, region, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&contentType, "type", "shorts", "content type: shorts or long")
	cmd.Flags().StringVar(&region, "region", "", "region code (default: from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func channelsCmd() *cobra.Command {
	var (
		jsonOutput bool
		minScore   float64
		limit      int
		region     string
	)

	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List stored HOT channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChannels(cmd.Context(), jsonOutput, minScore, limit, region)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "minimum hot score")
	cmd.Flags().IntVar(&limit, "limit", 20, "max channels to show")
	cmd.Flags().StringVar(&region, "region", "", "only channels discovered in this region")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
