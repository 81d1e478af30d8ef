// Command skywatch is the terminal space dashboard.
//
// Usage:
//
//	skywatch                    Run the live dashboard
//	skywatch init               Write the default config
//	skywatch feed               Print the merged observation feed
//	skywatch alerts [--mark ID] List (and acknowledge) alerts
//	skywatch ask <question>     One chat turn
//	skywatch sources            Poll every source once and report health
//	skywatch devserver          Serve the backend API from fixtures
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abelbrown/skywatch/internal/config"
	"github.com/abelbrown/skywatch/internal/logging"
)

var version = "dev"

var (
	verbose    bool
	strict     bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "skywatch",
	Short:   "Live space dashboard",
	Long:    "skywatch polls ISS, telescope, analytics, space weather and news feeds and merges them into one terminal dashboard.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		var err error
		var path string
		cfg, path, err = config.LoadResolved(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if path != "" {
			logging.Debug("config loaded", "path", path)
		}
		return nil
	},
	SilenceUsage: true,
	RunE:         runDashboard,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "Panic on internal invariant violations")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(devserverCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("skywatch", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/skywatch/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}
		if err := config.WriteDefault(target); err != nil {
			return err
		}
		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to point api.base_url at your backend and tune poll cadences.")
		return nil
	},
}
