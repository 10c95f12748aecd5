package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"assetvault/internal/app"
	"assetvault/internal/config"
	"assetvault/internal/domain/storage"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp loads the environment config and wires the vault. The caller must
// defer a.Close().
func newApp() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var rootCmd = &cobra.Command{
	Use:          "vaultctl",
	Short:        "Operate the asset vault's background maintenance",
	SilenceUsage: true,
}

// retention command
var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Manage pending deletions",
}

var retentionSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Hard-delete references whose grace period has passed",
	RunE: func(cmd *cobra.Command, args []string) error {
		backendFlag, _ := cmd.Flags().GetString("backend")
		batch, _ := cmd.Flags().GetInt("batch")
		force, _ := cmd.Flags().GetBool("force")

		backends := []storage.Backend{storage.BackendLocal, storage.BackendExternal}
		if backendFlag != "all" {
			b, err := storage.ParseBackend(backendFlag)
			if err != nil {
				return err
			}
			backends = []storage.Backend{b}
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		reports := make([]*app.SweepReport, 0, len(backends))
		for _, b := range backends {
			report, err := a.SweepRetention(cmd.Context(), b, batch, force)
			if err != nil {
				return fmt.Errorf("sweeping %s: %w", b, err)
			}
			reports = append(reports, report)
		}
		return printJSON(cmd, reports)
	},
}

// uploads command
var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "Manage upload intents",
}

var uploadsExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Mark overdue upload intents expired",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.ExpireIntents(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]int64{"expired": n})
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move version bytes to the external backend",
}

var migrateRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Copy every local-only version to the external backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, _ := cmd.Flags().GetInt("batch")
		cleanup, _ := cmd.Flags().GetBool("cleanup")
		actor, _ := cmd.Flags().GetString("actor")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.MigrateAll(cmd.Context(), batch, cleanup, actor)
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}

var migrateBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Stamp public URLs on migrated versions missing one",
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, _ := cmd.Flags().GetInt("batch")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.BackfillPublicURLs(cmd.Context(), batch)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]int{"stamped": n})
	},
}

var migrateStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count versions by where their bytes live",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Migration.GetStats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, stats)
	},
}

func init() {
	retentionCmd.AddCommand(retentionSweepCmd)
	retentionSweepCmd.Flags().String("backend", "all", "local, external or all")
	retentionSweepCmd.Flags().IntP("batch", "n", 100, "Rows per batch")
	retentionSweepCmd.Flags().Bool("force", false, "Ignore the grace period")

	uploadsCmd.AddCommand(uploadsExpireCmd)

	migrateCmd.AddCommand(migrateRunCmd)
	migrateCmd.AddCommand(migrateBackfillCmd)
	migrateCmd.AddCommand(migrateStatsCmd)
	migrateRunCmd.Flags().IntP("batch", "n", 50, "Versions per page")
	migrateRunCmd.Flags().Bool("cleanup", false, "Drop local references of migrated versions")
	migrateRunCmd.Flags().String("actor", "vaultctl", "Actor recorded on queued deletions")
	migrateBackfillCmd.Flags().IntP("batch", "n", 50, "Versions per page")

	rootCmd.AddCommand(retentionCmd)
	rootCmd.AddCommand(uploadsCmd)
	rootCmd.AddCommand(migrateCmd)
}
