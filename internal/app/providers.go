package app

import (
	"context"

	brcfg "btcagent/internal/config"
)

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func provideAppBuilder(cfg *brcfg.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}
