package feed

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/dep2p/go-multicore/pkg/types"
	"golang.org/x/crypto/blake2b"
	"lukechampine.com/blake3"
)

// discoveryNamespace 发现密钥派生时被哈希的固定内容
var discoveryNamespace = []byte("hypercore")

// KeyPair feed 密钥对
type KeyPair struct {
	Public types.Key
	Secret ed25519.PrivateKey
}

// GenerateKeyPair 生成新的 ed25519 密钥对
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	var k types.Key
	copy(k[:], pub)
	return &KeyPair{Public: k, Secret: priv}, nil
}

// KeyPairFromSecret 从 64 字节私钥恢复密钥对
func KeyPairFromSecret(secret []byte) (*KeyPair, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: secret length %d", ErrInvalidSecret, len(secret))
	}
	priv := ed25519.PrivateKey(append([]byte(nil), secret...))
	var k types.Key
	copy(k[:], priv.Public().(ed25519.PublicKey))
	return &KeyPair{Public: k, Secret: priv}, nil
}

// KeyPairFromHex 从十六进制私钥恢复密钥对
func KeyPairFromHex(s string) (*KeyPair, error) {
	secret, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return KeyPairFromSecret(secret)
}

// SecretHex 返回私钥十六进制表示
func (kp *KeyPair) SecretHex() string {
	return hex.EncodeToString(kp.Secret)
}

// DiscoveryKey 由公钥派生发现密钥
//
// blake2b-256，以公钥为 MAC 密钥，对固定串 "hypercore" 求值。
func DiscoveryKey(key types.Key) types.DiscoveryKey {
	h, err := blake2b.New256(key[:])
	if err != nil {
		// 32 字节密钥不会超过 blake2b 的 64 字节上限
		panic(err)
	}
	h.Write(discoveryNamespace)

	var dk types.DiscoveryKey
	copy(dk[:], h.Sum(nil))
	return dk
}

// chainRoot 计算追加 value 之后的根哈希
func chainRoot(prev [32]byte, value []byte) [32]byte {
	h := blake3.New(32, nil)
	h.Write(prev[:])
	h.Write(value)

	var root [32]byte
	copy(root[:], h.Sum(nil))
	return root
}

func sign(secret ed25519.PrivateKey, root [32]byte) []byte {
	return ed25519.Sign(secret, root[:])
}

func verify(key types.Key, root [32]byte, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(key[:]), root[:], sig)
}
