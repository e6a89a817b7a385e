package storage

import (
	"context"

	"github.com/dep2p/go-multicore/config"
	"github.com/dep2p/go-multicore/internal/core/storage/engine"
	"github.com/dep2p/go-multicore/internal/core/storage/engine/badger"
	"github.com/dep2p/go-multicore/internal/core/storage/kv"
	pkgif "github.com/dep2p/go-multicore/pkg/interfaces"
	"github.com/dep2p/go-multicore/pkg/lib/log"
	"go.uber.org/fx"
)

var logger = log.Logger("core/storage")

// 键空间前缀
var (
	// FeedPrefix feed 条目与元数据
	FeedPrefix = []byte("f/")
	// IdentityPrefix 本地身份
	IdentityPrefix = []byte("i/")
)

// Params Storage 模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Result Storage 模块提供的结果
type Result struct {
	fx.Out

	Engine pkgif.Engine
	Feeds  *kv.Store `name:"feeds"`
}

// Module 返回 Storage Fx 模块
//
// 提供:
//   - pkgif.Engine: 存储引擎实例
//   - *kv.Store `name:"feeds"`: feed 键空间
//
// 生命周期:
//   - OnStart: 启动引擎后台 GC
//   - OnStop: 关闭引擎
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideStorage),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideStorage 提供存储引擎
func ProvideStorage(p Params) (Result, error) {
	eng, err := NewEngine(ConfigFromUnified(p.UnifiedCfg))
	if err != nil {
		return Result{}, err
	}
	return Result{
		Engine: eng,
		Feeds:  kv.New(eng, FeedPrefix),
	}, nil
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, eng pkgif.Engine) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			logger.Info("正在启动存储引擎")
			if starter, ok := eng.(interface{ Start() error }); ok {
				if err := starter.Start(); err != nil {
					logger.Error("存储引擎启动失败", "error", err)
					return err
				}
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			logger.Info("正在关闭存储引擎")
			if err := eng.Close(); err != nil {
				logger.Warn("存储引擎关闭失败", "error", err)
				return err
			}
			return nil
		},
	})
}

// NewEngine 根据配置创建存储引擎
func NewEngine(cfg *engine.Config) (*badger.Engine, error) {
	logger.Debug("创建存储引擎", "path", cfg.Path, "memory", cfg.InMemory)
	eng, err := badger.New(cfg)
	if err != nil {
		logger.Error("创建存储引擎失败", "error", err)
		return nil, err
	}
	return eng, nil
}

// Open 打开磁盘存储并返回 feed 与身份两个键空间
func Open(cfg *engine.Config) (eng *badger.Engine, feeds, identity *kv.Store, err error) {
	eng, err = NewEngine(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := eng.Start(); err != nil {
		_ = eng.Close()
		return nil, nil, nil, err
	}
	return eng, kv.New(eng, FeedPrefix), kv.New(eng, IdentityPrefix), nil
}
