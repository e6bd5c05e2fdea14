package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/recupero/internal/app"
	"github.com/foxzi/recupero/internal/db"
	"github.com/foxzi/recupero/internal/dispatch"
)

var (
	jobCampaign  string
	jobScheduled bool
	jobDryRun    bool
	maxDistance  float64
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Send the initial contact workflow",
	Long: `Dispatch one campaign, or every active campaign with --scheduled and no
--campaign. Contact windows and the same-day guard still apply.`,
	RunE: runDispatch,
}

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Send reminders for today's commitments",
	RunE:  runRemind,
}

var cutCmd = &cobra.Command{
	Use:   "cut",
	Short: "Generate the daily cut",
	Long:  `Generate the daily cut for one campaign, or for every active campaign.`,
	RunE:  runCut,
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute in-range persons for a maximum distance",
	RunE:  runRecompute,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE:  runMigrate,
}

func init() {
	dispatchCmd.Flags().StringVar(&jobCampaign, "campaign", "", "Campaign ID")
	dispatchCmd.Flags().BoolVar(&jobScheduled, "scheduled", false, "Run as the scheduled job")
	dispatchCmd.Flags().BoolVar(&jobDryRun, "dry-run", false, "Select and batch without calling upstream or writing state")

	remindCmd.Flags().BoolVar(&jobDryRun, "dry-run", false, "Select without calling upstream or writing state")

	cutCmd.Flags().StringVar(&jobCampaign, "campaign", "", "Campaign ID (default: all active campaigns)")

	recomputeCmd.Flags().StringVar(&jobCampaign, "campaign", "", "Campaign ID")
	recomputeCmd.Flags().Float64Var(&maxDistance, "max", 0, "Maximum distance in meters")
	recomputeCmd.MarkFlagRequired("campaign")
	recomputeCmd.MarkFlagRequired("max")

	rootCmd.AddCommand(dispatchCmd, remindCmd, cutCmd, recomputeCmd, migrateCmd)
}

// openApp loads the config and builds the application core
func openApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if jobDryRun {
		cfg.Dispatch.DryRun = true
	}

	a, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	return a, nil
}

func runDispatch(cmd *cobra.Command, args []string) error {
	if jobCampaign == "" && !jobScheduled {
		return fmt.Errorf("--campaign is required unless --scheduled is set")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	if jobCampaign == "" {
		return printJSON(a.Dispatcher().RunScheduled(ctx))
	}

	trigger := dispatch.TriggerManual
	if jobScheduled {
		trigger = dispatch.TriggerScheduled
	}

	report, err := a.Dispatcher().Run(ctx, jobCampaign, trigger)
	if err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}
	return printJSON(report)
}

func runRemind(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Dispatcher().RunReminders(context.Background())
	if err != nil {
		return fmt.Errorf("reminder run failed: %w", err)
	}
	return printJSON(report)
}

func runCut(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	if jobCampaign == "" {
		return printJSON(a.Cuts().RunAll(ctx))
	}

	result, err := a.Cuts().Run(ctx, jobCampaign)
	if err != nil {
		return fmt.Errorf("cut failed: %w", err)
	}
	return printJSON(result)
}

func runRecompute(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Campaigns().RecomputeDistance(context.Background(), jobCampaign, maxDistance)
	if err != nil {
		return fmt.Errorf("recompute failed: %w", err)
	}
	return printJSON(result)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return err
	}

	fmt.Println("Migrations completed successfully")
	return nil
}
