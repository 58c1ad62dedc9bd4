package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/config"
	"github.com/username/ecoenergy-api/internal/database"
	"github.com/username/ecoenergy-api/internal/logger"
	"github.com/username/ecoenergy-api/internal/seed"
	"github.com/username/ecoenergy-api/internal/server"
	"github.com/username/ecoenergy-api/internal/trace"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "ecoenergy",
		Short: "EcoEnergy API",
		Long:  `EcoEnergy API serves the energy monitoring back office: REST API, web panel and exports`,
		RunE:  runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and start the HTTP server",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE:  runMigrate,
	}

	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Load the demo organization, catalogue and users",
		RunE:  runSeed,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", server.ServiceName, cfg.Server.Version)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", configFromEnv(), "path to configuration file")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, versionCmd)
}

func configFromEnv() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

// bootstrap loads the config, builds the logger and opens the database.
func bootstrap() (*config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	lg, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.Open(cfg.Database, lg)
	if err != nil {
		_ = lg.Sync()
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	lg.Info("database connected", zap.String("type", cfg.Database.Type))
	return cfg, lg, db, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, lg, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer lg.Sync()
	defer database.Close(db)

	if err := database.Migrate(cfg.Database, db, lg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := trace.Init(ctx, cfg.Tracing, cfg.Server.Version, lg)
	if err != nil {
		return err
	}
	defer func() {
		// ctx sudah dibatalkan di sini
		if err := shutdownTracing(context.Background()); err != nil {
			lg.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	srv, err := server.New(cfg, db, lg)
	if err != nil {
		return err
	}
	defer srv.Close()

	lg.Info("starting "+server.ServiceName, zap.String("version", cfg.Server.Version))
	return srv.Run(ctx)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, lg, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer lg.Sync()
	defer database.Close(db)

	return database.Migrate(cfg.Database, db, lg)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, lg, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer lg.Sync()
	defer database.Close(db)

	if err := database.Migrate(cfg.Database, db, lg); err != nil {
		return err
	}
	res, err := seed.Run(cmd.Context(), db, cfg.Seed, lg)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	seed.PrintResult(out, res)
	seed.PrintRoles(out)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
