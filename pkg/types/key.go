package types

import (
	"encoding/hex"
	"fmt"
)

// ============================================================================
//                              Key - Feed 公钥
// ============================================================================

// KeySize 公钥与发现密钥的字节长度
const KeySize = 32

// Key Feed 公钥（ed25519）
//
// 外部表示为 64 个小写十六进制字符，这是浏览器端与中继之间
// 交换 key 的唯一格式（URL 路径、握手 userData）。
type Key [KeySize]byte

// EmptyKey 空公钥
var EmptyKey Key

// String 返回十六进制表示
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Short 返回日志用的短表示
func (k Key) Short() string {
	return k.String()[:8]
}

// Bytes 返回字节切片副本
func (k Key) Bytes() []byte {
	b := make([]byte, KeySize)
	copy(b, k[:])
	return b
}

// IsZero 检查是否为空
func (k Key) IsZero() bool {
	return k == EmptyKey
}

// MarshalText 实现 encoding.TextMarshaler
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKey 从十六进制字符串解析公钥
//
// 必须恰好是 64 个十六进制字符。
func ParseKey(s string) (Key, error) {
	var k Key
	if err := decodeHex32(s, k[:]); err != nil {
		return EmptyKey, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return k, nil
}

// KeyFromBytes 从字节切片构造公钥
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return EmptyKey, fmt.Errorf("%w: length %d", ErrInvalidKey, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// ============================================================================
//                              DiscoveryKey - 发现密钥
// ============================================================================

// DiscoveryKey 由公钥单向派生的发现密钥
//
// 用于在网络上宣告和寻找 feed，不泄露公钥本身。
type DiscoveryKey [KeySize]byte

// EmptyDiscoveryKey 空发现密钥
var EmptyDiscoveryKey DiscoveryKey

// String 返回十六进制表示
func (d DiscoveryKey) String() string {
	return hex.EncodeToString(d[:])
}

// Short 返回日志用的短表示
func (d DiscoveryKey) Short() string {
	return d.String()[:8]
}

// IsZero 检查是否为空
func (d DiscoveryKey) IsZero() bool {
	return d == EmptyDiscoveryKey
}

// ParseDiscoveryKey 从十六进制字符串解析发现密钥
func ParseDiscoveryKey(s string) (DiscoveryKey, error) {
	var d DiscoveryKey
	if err := decodeHex32(s, d[:]); err != nil {
		return EmptyDiscoveryKey, fmt.Errorf("%w: %v", ErrInvalidDiscoveryKey, err)
	}
	return d, nil
}

// DiscoveryKeyFromBytes 从字节切片构造发现密钥
func DiscoveryKeyFromBytes(b []byte) (DiscoveryKey, error) {
	var d DiscoveryKey
	if len(b) != KeySize {
		return EmptyDiscoveryKey, fmt.Errorf("%w: length %d", ErrInvalidDiscoveryKey, len(b))
	}
	copy(d[:], b)
	return d, nil
}

func decodeHex32(s string, dst []byte) error {
	if len(s) != hex.EncodedLen(KeySize) {
		return fmt.Errorf("expected %d hex chars, got %d", hex.EncodedLen(KeySize), len(s))
	}
	_, err := hex.Decode(dst, []byte(s))
	return err
}
