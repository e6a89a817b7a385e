package bridge

import (
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-multicore/internal/core/metrics"
)

// chunkSize 单次拷贝的缓冲区大小
const chunkSize = 32 << 10

// Tap 观察经过桥的数据块，不得修改或持有 chunk
type Tap func(direction string, chunk []byte)

// Pipe 在外部连接 web 与本地复制流 local 之间双向拷贝
//
// 任一方向结束（对端关闭或出错）都会关闭两端。写端阻塞时对应方向停止读取，
// 背压因此双向传递。正常关闭（EOF、已关闭连接）不视为错误。
func Pipe(web, local io.ReadWriteCloser, taps ...Tap) error {
	var (
		once     sync.Once
		closeErr error
	)
	closeBoth := func() {
		once.Do(func() {
			closeErr = multierr.Combine(web.Close(), local.Close())
		})
	}

	var g errgroup.Group
	g.Go(func() error {
		defer closeBoth()
		return copyChunks(local, web, metrics.DirectionFromWeb, taps)
	})
	g.Go(func() error {
		defer closeBoth()
		return copyChunks(web, local, metrics.DirectionToWeb, taps)
	})

	err := g.Wait()
	if isClean(closeErr) {
		closeErr = nil
	}
	return multierr.Append(err, closeErr)
}

// copyChunks 从 src 拷贝到 dst，每个块先交给 taps
func copyChunks(dst io.Writer, src io.Reader, direction string, taps []Tap) error {
	buf := make([]byte, chunkSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			for _, tap := range taps {
				tap(direction, buf[:n])
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				if isClean(werr) {
					return nil
				}
				return werr
			}
		}
		if rerr != nil {
			if isClean(rerr) {
				return nil
			}
			return rerr
		}
	}
}

// isClean 判断是否为正常关闭
func isClean(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}
