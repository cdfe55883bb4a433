package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/adapters/datasource"
	"github.com/dbscope-io/dbscope-engine/pkg/adapters/datasource/mysql"
	"github.com/dbscope-io/dbscope-engine/pkg/adapters/datasource/postgres"
	"github.com/dbscope-io/dbscope-engine/pkg/config"
	"github.com/dbscope-io/dbscope-engine/pkg/database"
	"github.com/dbscope-io/dbscope-engine/pkg/handlers"
	"github.com/dbscope-io/dbscope-engine/pkg/llm"
	"github.com/dbscope-io/dbscope-engine/pkg/logging"
	mcpserver "github.com/dbscope-io/dbscope-engine/pkg/mcp"
	"github.com/dbscope-io/dbscope-engine/pkg/mcp/tools"
	"github.com/dbscope-io/dbscope-engine/pkg/middleware"
	"github.com/dbscope-io/dbscope-engine/pkg/repositories"
	"github.com/dbscope-io/dbscope-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("store", cfg.Store.Path),
		zap.Int("query_default_limit", cfg.Query.DefaultLimit),
		zap.Duration("metadata_ttl", cfg.Metadata.TTL),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("mcp_enabled", cfg.MCP.Enabled))

	store, err := database.NewConnection(cfg.Store.Path)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer store.Close()

	if err := database.RunMigrations(store.DB, cfg.Store.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	registry := datasource.NewRegistry(logger)
	registry.Register(datasource.DialectPostgres, postgres.New)
	registry.Register(datasource.DialectMySQL, mysql.New)

	connRepo := repositories.NewConnectionRepository(store)
	metaRepo := repositories.NewMetadataRepository(store)
	historyRepo := repositories.NewQueryHistoryRepository(store, cfg.Query.HistoryLimit)

	poolConfig := services.PoolConfig{
		MinConns:       cfg.Query.PoolMinConns,
		MaxConns:       cfg.Query.PoolMaxConns,
		CommandTimeout: cfg.Query.Timeout,
	}

	connectionService := services.NewConnectionService(connRepo, metaRepo, registry, cfg.Query.Timeout, logger)
	metadataService := services.NewMetadataService(connectionService, metaRepo, registry, cfg.Metadata.TTL, poolConfig, logger)
	queryService := services.NewQueryService(connectionService, historyRepo, registry, cfg.Query.DefaultLimit, poolConfig, logger)
	exportService := services.NewExportService(queryService, cfg.Export.Secret, cfg.Export.TokenTTL, cfg.Export.BaseURL, logger)

	llmClient, err := llm.NewClient(&llm.Config{
		Provider:    cfg.LLM.Provider,
		Endpoint:    cfg.LLM.Endpoint,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		Temperature: float32(cfg.LLM.Temperature),
		MaxTokens:   cfg.LLM.MaxTokens,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create llm client", zap.Error(err))
	}
	nl2sqlService := services.NewNL2SQLService(connectionService, metaRepo, llmClient, cfg.Query.DefaultLimit, logger)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, registry, logger)
	healthHandler.RegisterRoutes(mux)

	connectionsHandler := handlers.NewConnectionsHandler(connectionService, metadataService, cfg.Metadata.TTL, logger)
	connectionsHandler.RegisterRoutes(mux)

	queriesHandler := handlers.NewQueriesHandler(queryService, exportService, nl2sqlService, logger)
	queriesHandler.RegisterRoutes(mux)

	exportsHandler := handlers.NewExportsHandler(exportService, logger)
	exportsHandler.RegisterRoutes(mux)

	if cfg.MCP.Enabled {
		mcpSrv := mcpserver.NewServer("dbscope-engine", cfg.Version, logger)
		tools.RegisterAll(mcpSrv.MCP(), &tools.Deps{
			Connections: connectionService,
			Metadata:    metadataService,
			Queries:     queryService,
			Logger:      logger,
		})
		mux.Handle("/mcp", middleware.MCPRequestLogger(logger)(mcpSrv.NewStreamableHTTPServer()))
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: middleware.RequestLogger(logger)(mux),
	}

	go func() {
		logger.Info("Starting dbscope-engine",
			zap.String("port", cfg.Port),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown did not complete cleanly", zap.Error(err))
	}

	// Release pooled connections to registered databases before exit.
	registry.CloseAll()
}
