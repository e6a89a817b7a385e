package swarm

import (
	"errors"
	"sync"
	"testing"

	"github.com/dep2p/go-multicore/internal/core/feed"
	"github.com/dep2p/go-multicore/pkg/types"
	"github.com/stretchr/testify/assert"
)

type fakeRegistrar struct {
	mu    sync.Mutex
	added []types.Key
	err   error
	panic bool
}

func (f *fakeRegistrar) Add(key types.Key) (*feed.Feed, error) {
	if f.panic {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.added = append(f.added, key)
	return nil, nil
}

type announcement struct {
	name string
	key  types.Key
}

type fakeAnnouncer struct {
	mu  sync.Mutex
	got []announcement
}

func (f *fakeAnnouncer) AnnounceActor(name string, key types.Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, announcement{name, key})
}

func TestConnector_ValidUserData(t *testing.T) {
	reg := &fakeRegistrar{}
	ann := &fakeAnnouncer{}
	c := NewConnector(reg, ann)

	key := types.Key{4, 5, 6}
	c.HandleConnection(&Peer{UserData: EncodeUserData("carol", key)})

	assert.Equal(t, []types.Key{key}, reg.added)
	assert.Equal(t, []announcement{{"carol", key}}, ann.got)
	assert.Equal(t, int64(1), c.Accepted())
	assert.Zero(t, c.Dropped())
}

func TestConnector_MalformedUserDataIsIgnored(t *testing.T) {
	reg := &fakeRegistrar{}
	ann := &fakeAnnouncer{}
	c := NewConnector(reg, ann)

	for _, data := range [][]byte{
		nil,
		[]byte("{"),
		[]byte(`{"name":"x"}`),
		[]byte(`{"name":"x","key":"nothex"}`),
	} {
		c.HandleConnection(&Peer{RemoteAddr: "10.0.0.1:1", UserData: data})
	}

	assert.Empty(t, reg.added)
	assert.Empty(t, ann.got)
	assert.Equal(t, int64(4), c.Dropped())
}

func TestConnector_RegistrarErrorSkipsAnnounce(t *testing.T) {
	reg := &fakeRegistrar{err: errors.New("closed")}
	ann := &fakeAnnouncer{}
	c := NewConnector(reg, ann)

	c.HandleConnection(&Peer{UserData: EncodeUserData("dave", types.Key{1})})
	assert.Empty(t, ann.got)
	assert.Equal(t, int64(1), c.Dropped())
}

func TestConnector_RecoversFromPanic(t *testing.T) {
	c := NewConnector(&fakeRegistrar{panic: true}, &fakeAnnouncer{})

	assert.NotPanics(t, func() {
		c.HandleConnection(&Peer{UserData: EncodeUserData("eve", types.Key{1})})
	})
	assert.Equal(t, int64(1), c.Dropped())
}

func TestConnector_NilAnnouncer(t *testing.T) {
	reg := &fakeRegistrar{}
	c := NewConnector(reg, nil)
	c.HandleConnection(&Peer{UserData: EncodeUserData("frank", types.Key{2})})
	assert.Len(t, reg.added, 1)
}
