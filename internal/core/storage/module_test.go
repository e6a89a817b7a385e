package storage

import (
	"testing"

	"github.com/dep2p/go-multicore/config"
	"github.com/dep2p/go-multicore/internal/core/storage/kv"
	pkgif "github.com/dep2p/go-multicore/pkg/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

type feedsIn struct {
	fx.In

	Feeds *kv.Store `name:"feeds"`
}

func TestConfigFromUnified(t *testing.T) {
	assert.True(t, ConfigFromUnified(nil).InMemory)

	cfg := config.NewConfig()
	cfg.Storage.Mode = config.StorageModeBadger
	cfg.Storage.DataDir = t.TempDir()

	ec := ConfigFromUnified(cfg)
	assert.False(t, ec.InMemory)
	assert.Contains(t, ec.Path, "multicore.db")
}

func TestModule_Lifecycle(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Storage.Mode = config.StorageModeMemory

	var eng pkgif.Engine
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Invoke(func(e pkgif.Engine, p feedsIn) {
			eng = e
			require.NotNil(t, p.Feeds)
		}),
	)
	app.RequireStart()
	require.NoError(t, eng.Put([]byte("k"), []byte("v")))
	app.RequireStop()
}

func TestOpen(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Storage.Mode = config.StorageModeBadger
	cfg.Storage.DataDir = t.TempDir()

	eng, feeds, identity, err := Open(ConfigFromUnified(cfg))
	require.NoError(t, err)
	defer eng.Close()

	require.NoError(t, feeds.PutString([]byte("k"), "feed"))
	ok, err := identity.Has([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}
