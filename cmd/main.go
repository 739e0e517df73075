package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"

	"career-agent/handler"
	"career-agent/internal/config"
	"career-agent/internal/generator"
	"career-agent/internal/integrations/gemini"
	"career-agent/internal/integrations/openai"
	"career-agent/internal/integrations/paramstore"
	"career-agent/internal/repository"
	"career-agent/internal/usecase"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "career-agent",
		Short:         "Career planning questionnaire and chat API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the API over HTTP",
			Args:  cobra.NoArgs,
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "lambda",
			Short: "Serve the API as an AWS Lambda behind API Gateway",
			Args:  cobra.NoArgs,
			RunE:  runLambda,
		},
	)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, h, closer, err := build(ctx)
	if err != nil {
		return err
	}
	defer closer()

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runLambda(cmd *cobra.Command, _ []string) error {
	_, h, closer, err := build(cmd.Context())
	if err != nil {
		return err
	}
	defer closer()

	lambda.Start(h.Handle)
	return nil
}

// build wires every dependency from configuration. The returned func
// releases the store.
func build(ctx context.Context) (*config.Config, *handler.Handler, func(), error) {
	// ---- Configuration ----
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := cfg.Logging.NewLogger(os.Stderr)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)

	// ---- AWS SDK config, only when something needs it ----
	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		c, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
		}
		awsCfg = &c
		return c, nil
	}

	// ---- Store ----
	var (
		store  repository.Gateway
		closer = func() {}
	)
	switch cfg.Store.Backend {
	case config.BackendDynamoDB:
		c, err := loadAWS()
		if err != nil {
			return nil, nil, nil, err
		}
		ds, err := repository.NewDynamoStore(awsdynamodb.NewFromConfig(c), cfg.Store.StateTable)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create dynamodb store: %w", err)
		}
		store = ds
	default:
		ss, err := repository.NewSQLiteStore(cfg.Store.DatabasePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create sqlite store: %w", err)
		}
		store = ss
		closer = func() { closeQuietly(ss) }
	}

	// ---- Generation backend ----
	var getter paramstore.Getter
	if cfg.LLM.ParamPrefix != "" {
		c, err := loadAWS()
		if err != nil {
			closer()
			return nil, nil, nil, err
		}
		pc, err := paramstore.New(awsssm.NewFromConfig(c))
		if err != nil {
			closer()
			return nil, nil, nil, fmt.Errorf("create SSM client: %w", err)
		}
		getter = pc
	}
	completer, err := newCompleter(ctx, cfg.LLM, getter)
	if err != nil {
		closer()
		return nil, nil, nil, err
	}
	gen := generator.New(completer, generator.WithTimeout(cfg.LLM.Timeout))

	// ---- Services and handler ----
	questionnaireSvc, err := usecase.NewQuestionnaireService(store, gen)
	if err != nil {
		closer()
		return nil, nil, nil, err
	}
	careerSvc, err := usecase.NewCareerService(store, gen, cfg.Chat.HistoryLimit)
	if err != nil {
		closer()
		return nil, nil, nil, err
	}
	h, err := handler.NewHandler(questionnaireSvc, careerSvc, handler.AppInfo{
		Name:        cfg.App.Name,
		Version:     cfg.App.Version,
		Description: cfg.App.Description,
	})
	if err != nil {
		closer()
		return nil, nil, nil, err
	}

	slog.Info("service initialized",
		"store", cfg.Store.Backend,
		"llm_provider", cfg.LLM.Provider,
		"llm_available", gen.Available(),
	)
	return cfg, h, closer, nil
}

// newCompleter returns nil, with no error, when no credential is configured.
func newCompleter(ctx context.Context, cfg config.LLMConfig, getter paramstore.Getter) (generator.Completer, error) {
	key, err := cfg.ResolveAPIKey(ctx, getter)
	if err != nil {
		slog.Warn("could not load LLM credential; continuing without it", "param", cfg.CredentialParam(), "err", err)
		return nil, nil
	}
	if key == "" {
		return nil, nil
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		c, err := openai.NewClient(key, openai.WithModel(cfg.OpenAIModel), openai.WithBaseURL(cfg.OpenAIBaseURL))
		if err != nil {
			return nil, fmt.Errorf("create OpenAI client: %w", err)
		}
		return c, nil
	default:
		c, err := gemini.NewClient(ctx, key, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("create Gemini client: %w", err)
		}
		return c, nil
	}
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Warn("close failed", "err", err)
	}
}
