package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dep2p/go-multicore/internal/core/multicore"
	"github.com/dep2p/go-multicore/internal/core/replication"
	"github.com/dep2p/go-multicore/pkg/types"
)

// Endpoint 返回会话的中继端点地址
//
//	Endpoint("ws://relay:8080/archiver/", key) = "ws://relay:8080/archiver/<hex>"
func Endpoint(relayURL string, key types.Key) string {
	return strings.TrimSuffix(relayURL, "/") + "/" + key.String()
}

// Link 客户端到中继的链路
type Link struct {
	conn *wsConn

	done chan struct{}
	once sync.Once
	err  error
}

// Done 链路结束后关闭
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Err 链路结束原因，正常关闭为 nil
func (l *Link) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// Close 关闭链路并等待管道结束
func (l *Link) Close() error {
	l.once.Do(func() {
		_ = l.conn.Close()
	})
	<-l.done
	return l.err
}

// Dial 连接中继，把本地归档器的复制流接到中继上
//
// relayURL 为端点前缀，会话标识取本地归档器公钥。链路断开后不会重连。
func Dial(ctx context.Context, relayURL string, mc *multicore.Multicore, taps ...Tap) (*Link, error) {
	if err := waitReady(ctx, mc.Ready()); err != nil {
		return nil, err
	}

	url := Endpoint(relayURL, mc.Key())
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}

	local, err := mc.Replicate(replication.Options{Encrypt: false})
	if err != nil {
		_ = ws.Close()
		return nil, err
	}

	l := &Link{
		conn: newWSConn(ws),
		done: make(chan struct{}),
	}
	logger.Info("已连接中继", "url", url)

	go func() {
		defer close(l.done)
		l.err = Pipe(l.conn, local, taps...)
		logger.Info("pipe finished", "url", url, "error", l.err)
	}()
	return l, nil
}
