package main

import (
	"fmt"
	"os"

	"flowstate-go/internal/app"
	"flowstate-go/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readConfig loads the config file named by the application defaults.
func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a FlowApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "AttachAdd", "Sync").
func newApp(operation string) (*app.FlowApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewFlowApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// withApp runs fn against a fresh FlowApp and records its error on the
// operation before closing the app.
func withApp(operation string, fn func(a *app.FlowApp) error) error {
	a, err := newApp(operation)
	if err != nil {
		return err
	}
	defer a.Close()

	err = fn(a)
	a.Fail(err)
	return err
}

var rootCmd = &cobra.Command{
	Use:          "flowstate",
	Short:        "Project notes, attachments and device sync",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		device, _ := cmd.Flags().GetString("device")
		if device == "" {
			device, err = os.Hostname()
			if err != nil {
				return fmt.Errorf("determining device name: %w", err)
			}
		}
		dataRoot, _ := cmd.Flags().GetString("data-root")
		if dataRoot == "" {
			dataRoot = defaults["data_root"]
		}

		cfg := config.NewConfig(device, dataRoot)
		cfg.LogDir = defaults["log_dir"]

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Device:    %s\n", cfg.DeviceName)
		fmt.Printf("Data Root: %s\n", cfg.DataRoot)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Device:    %s\n", cfg.DeviceName)
		fmt.Printf("Data Root: %s\n", cfg.DataRoot)
		fmt.Printf("Log Dir:   %s (%s)\n", cfg.LogDir, cfg.LogLevel)
		fmt.Printf("Database:  %s %s\n", cfg.Database.Type, cfg.Database.Path)
		fmt.Printf("Git:       %s %s/%s timeout %s\n", cfg.Git.Binary, cfg.Git.Remote, cfg.Git.Branch, cfg.Git.Timeout())
		fmt.Printf("Watch:     debounce %s\n", cfg.Watch.Debounce())
		if len(cfg.Filesystem.Ignore) > 0 {
			fmt.Printf("Ignore:    %v\n", cfg.Filesystem.Ignore)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("device", "", "Device name (default: hostname)")
	configInitCmd.Flags().String("data-root", "", "Synchronized data directory")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(contentCmd)
	rootCmd.AddCommand(extractionCmd)
}
