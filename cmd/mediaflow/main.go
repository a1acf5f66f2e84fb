package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mediaflow/api/config"
	"mediaflow/api/services/workflow"
)

type cli struct {
	cfg config.Config
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().Int("http-port", 8080, "port for the REST endpoints")
	cmd.Flags().String("database-url", "", "postgres connection string")
	cmd.Flags().String("storage", string(config.StoragePostgres), "storage implementation: postgres or memory")
	cmd.Flags().String("executor-url", "http://localhost:8090", "base url of the remote node executor")
	cmd.Flags().Duration("executor-timeout", 5*time.Minute, "timeout of a single remote node call")
	cmd.Flags().Int("recorder-queue-size", 64, "number of finished runs buffered for persistence")
	cmd.Flags().Duration("definition-cache-ttl", 10*time.Minute, "how long parsed workflow definitions are cached, 0 keeps them forever")
	cmd.Flags().String("log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().String("log-format", "text", "log format: text or json")
	cmd.Flags().StringSlice("allowed-origins", []string{"*"}, "CORS allowed origins")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	viper.SetEnvPrefix("mediaflow")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
	}

	c.cfg = config.Config{
		HTTPPort:           viper.GetInt("http-port"),
		DatabaseURL:        viper.GetString("database-url"),
		Storage:            config.StorageType(viper.GetString("storage")),
		ExecutorURL:        viper.GetString("executor-url"),
		ExecutorTimeout:    viper.GetDuration("executor-timeout"),
		RecorderQueueSize:  viper.GetInt("recorder-queue-size"),
		DefinitionCacheTTL: viper.GetDuration("definition-cache-ttl"),
		LogLevel:           viper.GetString("log-level"),
		LogFormat:          viper.GetString("log-format"),
		AllowedOrigins:     viper.GetStringSlice("allowed-origins"),
	}
	return c.cfg.Validate()
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	logger := newLogger(c.cfg.LogLevel, c.cfg.LogFormat, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		repo     workflow.WorkflowRepository
		recorder interface {
			workflow.RunRecorder
			workflow.RunLister
		}
	)
	switch c.cfg.Storage {
	case config.StorageMemory:
		logger.Warn("Using in-memory storage, nothing survives a restart")
		repo = workflow.NewMemoryRepository()
		recorder = workflow.NewMemoryRecorder()
	default:
		pool, err := pgxpool.New(ctx, c.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		repo = workflow.NewPostgresRepository(pool)
		recorder = workflow.NewPostgresRecorder(pool)
	}

	queue := workflow.NewRecordQueue(recorder, c.cfg.RecorderQueueSize, logger)
	queue.Start()
	defer queue.Stop()

	executor := workflow.PassthroughExecutor{
		Remote: workflow.NewHTTPNodeExecutor(c.cfg.ExecutorURL, c.cfg.ExecutorTimeout),
	}
	coordinator := workflow.NewCoordinator(executor, queue, logger)
	service := workflow.NewService(repo, recorder, coordinator, c.cfg.DefinitionCacheTTL)

	router := workflow.NewRouter(service)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet)

	handler := handlers.CORS(
		handlers.AllowedOrigins(c.cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(handlers.CombinedLoggingHandler(os.Stdout, router))

	srv := &http.Server{
		Addr:              c.cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting http server", "address", srv.Addr, "storage", c.cfg.Storage)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Stopping http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down http server", "error", err)
	}
	return nil
}

func main() {
	c := &cli{}
	cmd := &cobra.Command{
		Use:          "mediaflow",
		Short:        "Runs media and LLM workflows built on the canvas",
		PreRunE:      c.setupConfig,
		RunE:         c.run,
		SilenceUsage: true,
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
