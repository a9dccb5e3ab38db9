// Ragd is a multi-tenant retrieval-augmented chat server.
//
// It ingests pdf, docx, and txt documents into per-tenant vector stores and
// streams chat completions augmented with retrieved document context.
//
// Usage:
//
//	# Start the server with defaults
//	ragd serve
//
//	# Custom config file and port
//	ragd serve --config ragd.yaml
//	SERVER_PORT=8080 ragd serve
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/extraction"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/isolation"
	"github.com/fyrsmithlabs/ragd/internal/llm"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/server"
	"github.com/fyrsmithlabs/ragd/internal/session"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ragd",
	Short: "Multi-tenant retrieval-augmented chat server",
	Long: `ragd serves document ingestion, vector search, and retrieval-augmented
chat streaming over HTTP, with per-session or per-tenant isolation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ragd HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ragd\nVersion:    %s\nCommit:     %s\nBuild Date: %s\n",
			version, gitCommit, buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return run(ctx)
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logging.Sync(logger)

	logger.Info("starting ragd",
		zap.String("version", version),
		zap.String("isolation_mode", cfg.Isolation.Mode),
	)

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	mode, err := isolation.ParseMode(cfg.Isolation.Mode)
	if err != nil {
		return err
	}

	var registry *session.Registry
	if mode == isolation.ModeSession {
		registry, err = session.NewRegistry(cfg.Isolation.SessionsPath, cfg.Isolation.SessionTTL, logger)
		if err != nil {
			return fmt.Errorf("initializing session registry: %w", err)
		}
	}

	resolver, err := isolation.NewResolver(mode, registry, logger)
	if err != nil {
		return err
	}

	stores, err := vectorstore.NewManager(vectorstore.ManagerConfig{
		BasePath:   cfg.VectorStore.Path,
		Compress:   cfg.VectorStore.Compress,
		VectorSize: cfg.VectorStore.VectorSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing vector stores: %w", err)
	}
	defer stores.Close()

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  cfg.Embeddings.APIKey,
	})
	if err != nil {
		return fmt.Errorf("initializing embeddings: %w", err)
	}

	ingestor, err := ingest.NewService(
		extraction.NewFileExtractor(),
		chunker.NewSentenceSplitter(),
		embedder,
		logger,
	)
	if err != nil {
		return fmt.Errorf("initializing ingestion: %w", err)
	}

	augmentor, err := rag.NewAugmentor(embedder, cfg.Chat.TopK, logger)
	if err != nil {
		return fmt.Errorf("initializing retrieval: %w", err)
	}

	chat, err := llm.NewClient(llm.Config{
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		DefaultModel: cfg.LLM.DefaultModel,
		SiteURL:      cfg.LLM.SiteURL,
		Temperature:  cfg.LLM.Temperature,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing chat client: %w", err)
	}

	var sweeper *session.Sweeper
	if registry != nil {
		purge := func(ctx context.Context, key string) {
			if err := stores.Drop(ctx, key); err != nil {
				logger.Warn("dropping expired store failed",
					zap.String("session_id", key), zap.Error(err))
			}
			uploadDir := isolation.IsolatedPath(cfg.Upload.Dir, key)
			if err := os.RemoveAll(uploadDir); err != nil {
				logger.Warn("removing expired uploads failed",
					zap.String("path", uploadDir), zap.Error(err))
			}
			server.RecordSessionsSwept(1)
		}
		sweeper = session.NewSweeper(registry, purge,
			cfg.Isolation.SweepInterval, cfg.Isolation.SweepProbability, logger)
		go sweeper.Run(ctx)
	}

	srv, err := server.NewServer(
		server.Config{
			Host:        cfg.Server.Host,
			Port:        cfg.Server.Port,
			CORSOrigins: cfg.Server.CORSOrigins,
			UploadDir:   cfg.Upload.Dir,
			MaxFileSize: cfg.Upload.MaxFileSize,
		},
		server.Deps{
			Resolver:  resolver,
			Stores:    stores,
			Embedder:  embedder,
			Ingestor:  ingestor,
			Augmentor: augmentor,
			Chat:      chat,
			Sweeper:   sweeper,
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
