package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/guttosm/b3lake/config"
	"github.com/guttosm/b3lake/internal/api"
	"github.com/guttosm/b3lake/internal/partition"
	"github.com/guttosm/b3lake/internal/service"
)

// InitializeApp sets up all read API dependencies and returns
// a fully configured Gin router, a cleanup function for graceful shutdown,
// and any error encountered during initialization.
//
// Responsibilities:
//   - Opens the manifest database, if one is configured.
//   - Builds the market service over the local lake (cfg.Data.Dir / cfg.S3.Prefix).
//   - Creates the HTTP handler layer and the Gin router with all API routes.
//   - Registers health and readiness probes for the data dir and the manifest.
//   - Provides a cleanup function to close resources (e.g., DB connection).
//
// Returns:
//   - *gin.Engine: the configured Gin HTTP router.
//   - func(): cleanup function to be executed on shutdown.
//   - error: any initialization error that occurred.
func InitializeApp(cfg *config.Config, log zerolog.Logger) (*gin.Engine, func(), error) {
	// indirection for unit testing
	repo, conn, err := manifestOpener(cfg.Manifest)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize manifest: %w", err)
	}

	reader := &partition.Reader{Log: log}
	svc := service.NewMarketService(cfg.Data.Dir, cfg.S3.Prefix, reader, repo)
	handler := api.NewHandler(svc)
	router := api.NewRouter(handler, log)

	dataDir := cfg.Data.Dir
	healthHandler := api.NewHealthHandler(map[string]api.Check{
		"data_dir": func(context.Context) error {
			_, err := os.Stat(dataDir)
			return err
		},
		"manifest": repo.Ping,
	})
	healthHandler.Register(router)

	cleanup := func() {
		if conn != nil {
			_ = conn.Close()
		}
	}

	return router, cleanup, nil
}
