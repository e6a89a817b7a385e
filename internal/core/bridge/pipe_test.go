package bridge

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-multicore/internal/core/metrics"
)

// failConn 读取时返回固定错误
type failConn struct {
	err    error
	mu     sync.Mutex
	closed bool
}

func (c *failConn) Read([]byte) (int, error)    { return 0, c.err }
func (c *failConn) Write(p []byte) (int, error) { return len(p), nil }
func (c *failConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func runPipe(web, local io.ReadWriteCloser, taps ...Tap) <-chan error {
	done := make(chan error, 1)
	go func() { done <- Pipe(web, local, taps...) }()
	return done
}

func waitPipe(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("pipe 未结束")
		return nil
	}
}

func TestPipe_CopiesBothWays(t *testing.T) {
	webRemote, web := net.Pipe()
	local, localRemote := net.Pipe()
	done := runPipe(web, local)

	go func() { _, _ = webRemote.Write([]byte("from web")) }()
	buf := make([]byte, 16)
	n, err := localRemote.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "from web", string(buf[:n]))

	go func() { _, _ = localRemote.Write([]byte("to web")) }()
	n, err = webRemote.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "to web", string(buf[:n]))

	require.NoError(t, webRemote.Close())
	assert.NoError(t, waitPipe(t, done))
}

func TestPipe_WebCloseClosesLocal(t *testing.T) {
	webRemote, web := net.Pipe()
	local, localRemote := net.Pipe()
	done := runPipe(web, local)

	require.NoError(t, webRemote.Close())
	assert.NoError(t, waitPipe(t, done))

	_, err := localRemote.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestPipe_LocalCloseClosesWeb(t *testing.T) {
	webRemote, web := net.Pipe()
	local, localRemote := net.Pipe()
	done := runPipe(web, local)

	require.NoError(t, localRemote.Close())
	assert.NoError(t, waitPipe(t, done))

	_, err := webRemote.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestPipe_ErrorClosesOtherSide(t *testing.T) {
	boom := errors.New("boom")
	web := &failConn{err: boom}
	local, localRemote := net.Pipe()
	done := runPipe(web, local)

	assert.ErrorIs(t, waitPipe(t, done), boom)

	_, err := localRemote.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	web.mu.Lock()
	assert.True(t, web.closed)
	web.mu.Unlock()
}

func TestPipe_Taps(t *testing.T) {
	webRemote, web := net.Pipe()
	local, localRemote := net.Pipe()

	var (
		mu  sync.Mutex
		got = map[string]int{}
	)
	tap := func(direction string, chunk []byte) {
		mu.Lock()
		got[direction] += len(chunk)
		mu.Unlock()
	}
	done := runPipe(web, local, tap)

	go func() { _, _ = webRemote.Write([]byte("abc")) }()
	buf := make([]byte, 8)
	n, err := localRemote.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	go func() { _, _ = localRemote.Write([]byte("de")) }()
	_, err = webRemote.Read(buf)
	require.NoError(t, err)

	require.NoError(t, localRemote.Close())
	require.NoError(t, waitPipe(t, done))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, got[metrics.DirectionFromWeb])
	assert.Equal(t, 2, got[metrics.DirectionToWeb])
}
