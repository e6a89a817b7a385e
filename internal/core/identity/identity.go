// Package identity 持久化本地 actor 身份
//
// 进程重启后通过固定名称取回同一把密钥，从而保持同一个 actorId。
package identity

import (
	"fmt"

	"github.com/dep2p/go-multicore/internal/core/feed"
	pkgif "github.com/dep2p/go-multicore/pkg/interfaces"
	"github.com/dep2p/go-multicore/pkg/lib/log"
	"github.com/dep2p/go-multicore/pkg/types"
)

var logger = log.Logger("core/identity")

// 固定的查找名称
const (
	// DocumentKeyName 文档标识（源 feed 公钥）
	DocumentKeyName = "key"
	// ActorKeyName 本地 actor feed 私钥
	ActorKeyName = "actor"
	// ArchiverKeyName 归档器 changes feed 私钥
	ArchiverKeyName = "archiver"
)

// LoadKeyPair 读取 name 下保存的密钥对，不存在时生成并保存
//
// created 表示本次新建了密钥对。
func LoadKeyPair(ks pkgif.Keystore, name string) (kp *feed.KeyPair, created bool, err error) {
	secret, err := ks.Get(name)
	if err != nil {
		return nil, false, err
	}
	if secret != "" {
		kp, err := feed.KeyPairFromHex(secret)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s: %v", ErrCorrupted, name, err)
		}
		return kp, false, nil
	}

	kp, err = feed.GenerateKeyPair()
	if err != nil {
		return nil, false, err
	}
	if err := ks.Set(name, kp.SecretHex()); err != nil {
		return nil, false, err
	}
	logger.Info("生成新密钥", "name", name, "key", kp.Public.Short())
	return kp, true, nil
}

// LoadKey 读取 name 下保存的公钥，ok 为 false 表示尚未保存
func LoadKey(ks pkgif.Keystore, name string) (key types.Key, ok bool, err error) {
	v, err := ks.Get(name)
	if err != nil || v == "" {
		return types.Key{}, false, err
	}
	key, err = types.ParseKey(v)
	if err != nil {
		return types.Key{}, false, fmt.Errorf("%w: %s: %v", ErrCorrupted, name, err)
	}
	return key, true, nil
}

// SaveKey 保存公钥
func SaveKey(ks pkgif.Keystore, name string, key types.Key) error {
	return ks.Set(name, key.String())
}
