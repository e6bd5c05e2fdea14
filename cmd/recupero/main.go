package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/recupero/internal/api"
	"github.com/foxzi/recupero/internal/app"
	"github.com/foxzi/recupero/internal/config"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "recupero",
	Short: "Recupero - equipment recovery campaigns",
	Long: `Recupero contacts customers over WhatsApp and voice calls to schedule the
return of rented equipment at pickup points.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		api.Version = version
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server",
	Long:  `Start the admin API, webhooks, scheduler and metrics.`,
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("recupero version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, configCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(context.Background())
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  API: %s\n", cfg.API.ListenAddr)
	fmt.Printf("  Timezone: %s\n", cfg.Server.Timezone)
	fmt.Printf("  Storage: %s\n", cfg.Storage.Path)
	fmt.Printf("  Idempotency: %s\n", cfg.Storage.IdempotencyBackend)
	fmt.Printf("  Cut sink: %s\n", cfg.Cut.Sink)
	if cfg.Schedule.Enabled {
		fmt.Printf("  Schedule: contact %q, cut %q (%s)\n", cfg.Schedule.ContactSpec, cfg.Schedule.CutSpec, cfg.Schedule.Timezone)
	} else {
		fmt.Printf("  Schedule: disabled\n")
	}
	if cfg.Dispatch.DryRun {
		fmt.Printf("  Dry run: enabled\n")
	}

	return nil
}

// printJSON writes v to stdout, indented
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
