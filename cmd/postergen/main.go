// Package main は識字ポスター生成の CLI です。
// サーバーを介さずにプロンプトの確認や生成、ローカル履歴の管理を行います。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yourusername/literacy-poster/internal/config"
	"github.com/yourusername/literacy-poster/internal/history"
	"github.com/yourusername/literacy-poster/internal/jobs"
	"github.com/yourusername/literacy-poster/internal/kie"
)

const historyKey = "cli"

// cliOptions はコマンドライン引数の値です。
type cliOptions struct {
	historyDir   string
	verbose      bool
	aspectRatio  string
	resolution   string
	outputFormat string
	maxRetries   int
	interval     time.Duration
	itemsFile    string
	yes          bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "postergen",
		Short:         "儿童识字小报生成器 CLI",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.historyDir, "history-dir", defaultHistoryDir(), "履歴ファイルの保存ディレクトリ")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "詳細ログを出力する")

	root.AddCommand(
		newThemesCmd(),
		newPromptCmd(),
		newGenerateCmd(opts),
		newBatchCmd(opts),
		newHistoryCmd(opts),
	)
	return root
}

func defaultHistoryDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".postergen"
	}
	return filepath.Join(dir, "literacy-poster")
}

func addGenerationFlags(cmd *cobra.Command, opts *cliOptions) {
	cmd.Flags().StringVar(&opts.aspectRatio, "aspect-ratio", "3:4", "画像の縦横比")
	cmd.Flags().StringVar(&opts.resolution, "resolution", "4K", "解像度")
	cmd.Flags().StringVar(&opts.outputFormat, "output-format", "png", "出力形式")
	cmd.Flags().IntVar(&opts.maxRetries, "max-retries", -1, "状態取得の最大回数（負数なら設定値を使う）")
	cmd.Flags().DurationVar(&opts.interval, "interval", -1, "状態取得の間隔（負数なら設定値を使う）")
}

// runtime は生成系コマンドが使う依存関係です。
type runtime struct {
	orch    *jobs.Orchestrator
	wait    jobs.WaitOptions
	jobOpts kie.JobOptions
	history *history.Service
	logger  *zerolog.Logger
}

func newRuntime(cmd *cobra.Command, opts *cliOptions) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !cfg.HasAPIKey() {
		return nil, fmt.Errorf("API_KEY が設定されていません（config/.env または環境変数で指定してください）")
	}

	logger := newCLILogger(cmd, opts.verbose)
	client := kie.NewClient(kie.Options{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.KieBaseURL,
		Model:   cfg.KieModel,
		Timeout: cfg.KieHTTPTimeout,
		Logger:  logger,
	})
	poller := jobs.NewPoller(client, jobs.WithLogger(logger))

	wait := jobs.WaitOptions{MaxRetries: cfg.PollMaxRetries, Interval: cfg.PollInterval}
	if opts.maxRetries >= 0 {
		wait.MaxRetries = opts.maxRetries
	}
	if opts.interval >= 0 {
		wait.Interval = opts.interval
	}

	hist, err := openHistory(opts)
	if err != nil {
		return nil, err
	}

	return &runtime{
		orch: jobs.NewOrchestrator(client, poller, cfg.BatchConcurrency, logger),
		wait: wait,
		jobOpts: kie.JobOptions{
			AspectRatio:  opts.aspectRatio,
			Resolution:   opts.resolution,
			OutputFormat: opts.outputFormat,
			CallbackURL:  cfg.KieCallbackURL,
		},
		history: hist,
		logger:  logger,
	}, nil
}

func openHistory(opts *cliOptions) (*history.Service, error) {
	store, err := history.NewFileStore(opts.historyDir)
	if err != nil {
		return nil, err
	}
	return history.NewService(store, history.DefaultCapacity), nil
}

func newCLILogger(cmd *cobra.Command, verbose bool) *zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	l := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()
	return &l
}
