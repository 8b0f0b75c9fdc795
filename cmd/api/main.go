package main

import (
	"fmt"
	"log"
	"os"

	"github.com/forgestack/forge/internal/api"
	"github.com/forgestack/forge/internal/config"
	"github.com/forgestack/forge/internal/directory"
	"github.com/forgestack/forge/internal/directory/postgres"
	"github.com/forgestack/forge/internal/directory/sqlite"
	"github.com/forgestack/forge/internal/execx"
	"github.com/forgestack/forge/internal/forge"
	"github.com/forgestack/forge/internal/observability"
	"github.com/forgestack/forge/internal/repos"
	"github.com/forgestack/forge/internal/tracker/redmine"
	"github.com/forgestack/forge/internal/webconfig"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.InitLogger("forge-api")

	// Initialize the directory store
	var dir directory.Directory
	switch cfg.Directory.Type {
	case "postgres":
		dir, err = postgres.NewPostgresDirectory(cfg.Directory.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL directory: %v", err)
		}
	default:
		dir, err = sqlite.NewSQLiteDirectory(cfg.Directory.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite directory: %v", err)
		}
	}
	defer dir.Close()

	// Wire the collaborators
	runner := execx.NewRunner(cfg.SSHTimeout())
	orchestrator := forge.New(
		dir,
		webconfig.NewGenerator(cfg.WebConfig.OutputDir),
		redmine.NewClient(cfg.Tracker.BaseURL, cfg.Tracker.APIKey),
		repos.New(runner, cfg.Repos.GitHubOrg, cfg.Repos.GitHubToken),
		runner,
		forge.Options{
			RestartCommand:  cfg.SSH.RestartCommand,
			SuperadminGroup: cfg.SuperadminGroup,
			LockFile:        cfg.LockFile,
			Logger:          logger,
		},
	)

	// Initialize handler and routes
	handler := api.NewHandler(orchestrator)
	router := api.SetupRoutes(handler)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port)
	logger.Info().Str("addr", addr).Str("directory", cfg.Directory.Type).Msg("starting API server")

	if err := router.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
}
