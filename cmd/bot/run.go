package main

import (
	"context"
	"io"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"avobot-go/internal/autoprod"
	"avobot-go/internal/config"
	"avobot-go/internal/exchange"
	"avobot-go/internal/execution"
	"avobot-go/internal/journal"
	"avobot-go/internal/metrics"
	"avobot-go/internal/recipe"
	"avobot-go/internal/state"
	"avobot-go/internal/trading"
	"avobot-go/internal/util"
)

func newRunCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the exchange and open the interactive console",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			ctx, cancel := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runBot(ctx, cfg, dryRun, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log outbound messages instead of dialing the exchange")
	return cmd
}

func runBot(ctx context.Context, cfg *config.Config, dryRun bool, in io.Reader, out io.Writer) error {
	log := util.NewLogger(cfg.App.LogLevel)

	if cfg.App.MetricsAddr != "" {
		srv := metrics.Serve(cfg.App.MetricsAddr)
		defer srv.Close()
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	catalog, err := recipe.LoadCatalog(cfg.Catalog.Path, cfg.Catalog.Aliases)
	if err != nil {
		return err
	}
	store := state.NewStore()
	resolver := recipe.NewResolver(store, catalog, cfg.Session.Species, cfg.Session.Team, util.Component(log, "recipe"))

	var conn execution.Connector
	if dryRun {
		conn = execution.NewExecutor(util.Component(log, "dry-run"))
	} else {
		ws := exchange.NewWSConnector(log)
		defer ws.Close()
		conn = ws
	}

	fills := journal.NewLedger(256)
	recorders := journal.Multi{fills}
	if cfg.Journal.FillsPath != "" {
		rec, err := journal.NewJSONLRecorder(cfg.Journal.FillsPath)
		if err != nil {
			return err
		}
		defer rec.Close()
		recorders = append(recorders, rec)
	}

	client := trading.New(store, conn, resolver, trading.Settings{
		APIKey:       cfg.Session.APIKey,
		Host:         cfg.Session.Host,
		Species:      cfg.Session.Species,
		Team:         cfg.Session.Team,
		SnapshotsDir: cfg.Session.SnapshotsDir,
	}, log,
		trading.WithJournal(recorders),
		trading.WithReconnectDelay(time.Duration(cfg.Reconnect.DelayMs)*time.Millisecond),
	)
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return err
	}

	scheduler := autoprod.New(client, log)
	defer scheduler.Stop()
	autostart(scheduler, cfg.Auto, log)

	return newConsole(client, scheduler, fills, in, out).Run(ctx)
}

func autostart(s *autoprod.Scheduler, auto config.Auto, log zerolog.Logger) {
	if auto.Product == "" {
		return
	}
	interval := time.Duration(auto.IntervalSecs) * time.Second
	if err := s.Start(auto.Product, auto.Premium, interval); err != nil {
		log.Error().Err(err).Str("product", auto.Product).Msg("auto production not started")
	}
}
