package app

import (
	"context"
	"fmt"

	brcfg "btcagent/internal/config"
	"btcagent/internal/logger"
	"btcagent/internal/scheduler"
	"btcagent/internal/service"
	"btcagent/internal/store"
	apihttp "btcagent/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动调度与 HTTP 服务。
type App struct {
	cfg       *brcfg.Config
	store     *store.Store
	runner    *service.Runner
	scheduler *scheduler.Scheduler
	http      *apihttp.Server
	Summary   *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *brcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动调度器与 HTTP 服务，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil || a.runner == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	group, ctx := errgroup.WithContext(ctx)
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}
	if a.scheduler != nil {
		group.Go(func() error {
			return a.scheduler.Run(ctx)
		})
	}
	logger.Infof("🚀 BTC智能监控与决策Agent系统已启动，按 Ctrl+C 退出")
	err := group.Wait()
	logger.Infof("👋 系统已关闭")
	return err
}

// Runner exposes the task runner for one-shot CLI commands.
func (a *App) Runner() *service.Runner {
	if a == nil {
		return nil
	}
	return a.runner
}

// Close 释放数据库连接。
func (a *App) Close() error {
	if a == nil || a.store == nil {
		return nil
	}
	return a.store.Close()
}
