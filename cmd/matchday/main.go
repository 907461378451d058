// Command matchday runs the live match reporting service.
//
// Usage:
//
//	matchday serve
//	matchday migrate
//	matchday standings rebuild --league 1 --season 2
//	matchday vapid
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/edvart/matchday/internal/broadcast"
	"github.com/edvart/matchday/internal/config"
	"github.com/edvart/matchday/internal/push"
	"github.com/edvart/matchday/internal/standings"
	"github.com/edvart/matchday/internal/store"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "matchday",
		Short:         "Live match reporting and league standings service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(standingsCmd())
	root.AddCommand(vapidCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// withStore loads config, sets up logging and opens the database for the
// duration of fn.
func withStore(fn func(ctx context.Context, cfg *config.Config, log *logrus.Logger, st *store.SQLiteStore) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, cfg, logger, st)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, cfg *config.Config, log *logrus.Logger, st *store.SQLiteStore) error {
				log.WithField("path", cfg.DatabasePath).Info("database schema up to date")
				return nil
			})
		},
	}
}

func standingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "standings",
		Short: "Standings maintenance",
	}
	cmd.AddCommand(standingsRebuildCmd())
	return cmd
}

func standingsRebuildCmd() *cobra.Command {
	var leagueID, seasonID int64
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute every standings row of a league season",
		RunE: func(cmd *cobra.Command, args []string) error {
			if leagueID <= 0 || seasonID <= 0 {
				return fmt.Errorf("--league and --season are required")
			}
			return withStore(func(ctx context.Context, cfg *config.Config, log *logrus.Logger, st *store.SQLiteStore) error {
				// Nobody is subscribed from the CLI; the hub only satisfies the engine.
				hub := broadcast.NewHub(log)
				defer hub.Close()

				changed, err := standings.NewEngine(st, hub, log).RebuildSeason(ctx, leagueID, seasonID)
				if err != nil {
					return err
				}
				log.WithFields(logrus.Fields{
					"league_id": leagueID,
					"season_id": seasonID,
					"changed":   changed,
				}).Info("standings rebuilt")
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&leagueID, "league", 0, "League ID")
	cmd.Flags().Int64Var(&seasonID, "season", 0, "Season ID")
	return cmd
}

func vapidCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "vapid",
		Short: "Generate a VAPID key pair for Web Push",
		RunE: func(cmd *cobra.Command, args []string) error {
			privateKey, publicKey, err := push.GenerateVAPIDKeys()
			if err != nil {
				return fmt.Errorf("generate VAPID keys: %w", err)
			}

			envContent := fmt.Sprintf("VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\nVAPID_SUBJECT=mailto:your-email@example.com\n",
				publicKey, privateKey)

			if out != "" {
				if err := os.WriteFile(out, []byte(envContent), 0600); err != nil {
					return fmt.Errorf("write keys: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Keys saved to:", out)
			}
			fmt.Fprint(cmd.OutOrStdout(), envContent)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Also write the keys to this file")
	return cmd
}
