// Command bot runs the trading agent and a few offline helpers around it.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"avobot-go/internal/config"
	"avobot-go/internal/market"
	"avobot-go/internal/production"
	"avobot-go/internal/snapshot"
)

var version = "dev"

const defaultConfigPath = "config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "bot",
		Short:        "Trading agent for the avocado exchange",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", defaultConfigPath, "path to the YAML configuration")

	root.AddCommand(newRunCmd(), newConfigCmd(), newSnapshotCmd(), newYieldCmd(), newVersionCmd())
	return root
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage the configuration file"}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration to --config",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Save(path, starterConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	})
	return cmd
}

func starterConfig() *config.Config {
	return &config.Config{
		App:       config.App{Name: "avobot", Env: "dev", LogLevel: "info"},
		Session:   config.Session{Host: "localhost:8080/ws", SnapshotsDir: "snapshots"},
		Reconnect: config.Reconnect{DelayMs: 3000},
		Journal:   config.Journal{FillsPath: "fills.jsonl"},
	}
}

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "snapshot", Short: "Work with saved account snapshots"}
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect <path>",
		Short: "Decode a snapshot and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := snapshot.Load(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	})
	return cmd
}

func newYieldCmd() *cobra.Command {
	var (
		branches, decay, base, level, bonus float64
		depth                               int
	)
	cmd := &cobra.Command{
		Use:   "yield",
		Short: "Print the units one production run yields for a role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			role := &market.TeamRole{
				Branches:    market.Float(branches),
				MaxDepth:    market.Int(depth),
				Decay:       market.Float(decay),
				BaseEnergy:  market.Float(base),
				LevelEnergy: market.Float(level),
			}
			units := production.Yield(role)
			rec := &market.Recipe{Kind: market.Premium, PremiumBonus: market.Float(bonus)}
			fmt.Fprintf(cmd.OutOrStdout(), "basic: %d\npremium: %d\n", units, production.ApplyPremiumBonus(units, rec))
			return nil
		},
	}
	cmd.Flags().Float64Var(&branches, "branches", 1, "branching factor per level")
	cmd.Flags().IntVar(&depth, "max-depth", 0, "deepest level, inclusive")
	cmd.Flags().Float64Var(&decay, "decay", 1, "per-level decay")
	cmd.Flags().Float64Var(&base, "base-energy", 0, "energy at level 0")
	cmd.Flags().Float64Var(&level, "level-energy", 0, "energy added per level")
	cmd.Flags().Float64Var(&bonus, "bonus", 1, "premium multiplier")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
