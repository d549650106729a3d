package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"btcagent/internal/app"
	brcfg "btcagent/internal/config"
	"btcagent/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

type rootOptions struct {
	configPath string
	closers    []io.Closer
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "btcagent",
		Short:         "BTC 智能监控与决策 Agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			for _, c := range opts.closers {
				_ = c.Close()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "配置文件路径（默认读取 BTCAGENT_CONFIG 或 "+defaultConfigPath+"）")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "启动调度任务与 HTTP 服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "analyze",
		Short: "执行一次完整分析并推送",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				res, err := a.Runner().RunAnalysis(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("信号: %s  置信度: %.2f  分级: %s\n", res.Signal.Signal, res.Signal.Confidence, res.Tier)
				if res.NotifyError != "" {
					fmt.Printf("通知失败: %s\n", res.NotifyError)
				}
				return nil
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "evaluate",
		Short: "评估到期的历史信号",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				sum, err := a.Runner().EvaluatePerformance(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("已评估 %d 条，正确 %d 条，跳过 %d 条\n", sum.Evaluated, sum.Correct, sum.Skipped)
				return nil
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "collect",
		Short: "采集一次行情与新闻",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				prices, perr := a.Runner().CollectPrices(ctx)
				items, nerr := a.Runner().CollectNews(ctx)
				fmt.Printf("K线 %d 根，新闻 %d 条\n", prices, items)
				if perr != nil {
					return perr
				}
				return nerr
			})
		},
	})
	return root
}

func runServe(ctx context.Context, opts *rootOptions) error {
	return withApp(ctx, opts, func(ctx context.Context, a *app.App) error {
		return a.Run(ctx)
	})
}

func withApp(parent context.Context, opts *rootOptions, fn func(context.Context, *app.App) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	a, err := app.NewApp(cfg)
	if err != nil {
		return fmt.Errorf("初始化应用失败: %w", err)
	}
	defer a.Close()
	return fn(ctx, a)
}

func loadConfig(opts *rootOptions) (*brcfg.Config, error) {
	_ = godotenv.Load()
	path := strings.TrimSpace(opts.configPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("BTCAGENT_CONFIG"))
	}
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := brcfg.Load(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		return nil, fmt.Errorf("初始化日志文件失败: %w", err)
	}
	if logFile != nil {
		opts.closers = append(opts.closers, logFile)
	}
	logger.SetLLMWriter(nil)
	if cfg.App.LLMDump {
		f, err := setupLLMLogOutput(cfg.App.LLMLog)
		if err != nil {
			return nil, fmt.Errorf("初始化 LLM 日志失败: %w", err)
		}
		if f != nil {
			opts.closers = append(opts.closers, f)
		}
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.EnableLLMPayloadDump(cfg.App.LLMDump)
	logger.Infof("✓ 配置加载成功（环境=%s，配置=%s）", cfg.App.Env, path)
	return cfg, nil
}

func openAppend(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	file, err := openAppend(trimmed)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

func setupLLMLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	f, err := openAppend(trimmed)
	if err != nil {
		return nil, err
	}
	logger.SetLLMWriter(f)
	return f, nil
}
