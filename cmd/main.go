package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"

	appconfig "leo-chat/internal/config"
	"leo-chat/internal/integrations/leoapi"
	"leo-chat/internal/integrations/paramstore"
	"leo-chat/internal/usecase"
)

var (
	apiURL   string
	langCode string
)

var rootCmd = &cobra.Command{
	Use:           "leochat",
	Short:         "LEO, the MOSDAC assistant, in your terminal",
	Long:          "Chat with LEO about MOSDAC data products, follow step-by-step navigation guides and rate answers.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "backend base URL (overrides LEO_API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&langCode, "lang", "", "response language code (overrides LEO_LANGUAGE)")

	statusCmd.Flags().StringVar(&statusFormat, "format", "text", "output format: text, json or yaml")

	rootCmd.AddCommand(askCmd, guideCmd, statusCmd, renderCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app is everything a command needs, built once from configuration.
type app struct {
	cfg      *appconfig.Config
	widget   *usecase.Widget
	logger   *slog.Logger
	closeLog func()
}

func (a *app) Close() {
	a.widget.Close()
	a.closeLog()
}

// ---- Bootstrap ----

// newApp loads configuration and wires the widget. Full-screen mode logs to
// LEO_LOG_FILE, where stderr would corrupt the display; other commands log to
// stderr.
func newApp(cmd *cobra.Command, fullScreen bool) (*app, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return nil, err
	}

	var logOut io.Writer = cmd.ErrOrStderr()
	closeLog := func() {}
	if fullScreen {
		logOut, closeLog, err = openLogFile(cfg.LogFile)
		if err != nil {
			return nil, err
		}
	}
	logger := setupLogging(cfg.LogLevel, logOut)

	a, err := wire(cmd, cfg, logger)
	if err != nil {
		closeLog()
		return nil, err
	}
	a.closeLog = closeLog
	return a, nil
}

func wire(cmd *cobra.Command, cfg *appconfig.Config, logger *slog.Logger) (*app, error) {
	ctx := cmd.Context()

	if cfg.ParamPrefix != "" {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, fmt.Errorf("create SSM client: %w", err)
		}
		if err := cfg.ApplyParamStore(ctx, ssmClient); err != nil {
			return nil, err
		}
		logger.Debug("applied parameter store overrides", "prefix", cfg.ParamPrefix)
	}

	if cmd.Flags().Changed("api-url") {
		cfg.APIBaseURL = apiURL
	}
	if cmd.Flags().Changed("lang") {
		cfg.Language = langCode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := leoapi.NewClient(cfg.APIBaseURL,
		leoapi.WithTimeout(cfg.RequestTimeout),
		leoapi.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}

	w, err := usecase.New(client, usecase.Config{
		Language:        cfg.Language,
		IntentThreshold: &cfg.IntentThreshold,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create widget: %w", err)
	}

	logger.Info("session started", "session_id", w.SessionID(), "api_url", cfg.APIBaseURL, "language", cfg.Language)
	return &app{cfg: cfg, widget: w, logger: logger}, nil
}

// openLogFile appends to path. An empty path discards logs.
func openLogFile(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func setupLogging(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
