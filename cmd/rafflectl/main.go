package main

import (
	"fmt"
	"os"

	"github.com/farellandr/rifa/config"
	"github.com/farellandr/rifa/internal/server"
	"github.com/farellandr/rifa/internal/services"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "rafflectl",
	Short:        "Staff maintenance commands for the raffle service",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(seedDemoCmd(), createAdminCmd(), settleCmd(), activateCmd(), expireCmd())
}

func main() {
	_ = godotenv.Load(".env")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openEngine connects to the configured database. Callers must invoke the
// returned close func.
func openEngine() (*services.Engine, *config.Config, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := config.InitDatabase(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	engine, cleanup, err := server.BuildEngine(cfg, db)
	if err != nil {
		return nil, nil, nil, err
	}
	return engine, cfg, cleanup, nil
}
