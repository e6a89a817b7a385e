package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dep2p/go-multicore/internal/core/storage/engine"
	"github.com/dep2p/go-multicore/internal/core/storage/kv"
	pkgif "github.com/dep2p/go-multicore/pkg/interfaces"
)

// ============================================================================
//                              KVKeystore
// ============================================================================

// KVKeystore 基于存储引擎的 keystore
type KVKeystore struct {
	store *kv.Store
}

var _ pkgif.Keystore = (*KVKeystore)(nil)

// NewKVKeystore 创建 keystore，store 通常是 "i/" 前缀的键空间
func NewKVKeystore(store *kv.Store) *KVKeystore {
	return &KVKeystore{store: store}
}

// Get 实现 Keystore
func (k *KVKeystore) Get(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidName
	}
	v, err := k.store.GetString([]byte(name))
	if err != nil {
		if engine.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

// Set 实现 Keystore
func (k *KVKeystore) Set(name, value string) error {
	if name == "" {
		return ErrInvalidName
	}
	return k.store.PutString([]byte(name), value)
}

// ============================================================================
//                              FileKeystore
// ============================================================================

// FileKeystore 保存在单个 JSON 文件中的 keystore
//
// 每次 Set 整体重写文件（临时文件 + rename），权限 0600。
type FileKeystore struct {
	path string

	mu sync.Mutex
}

var _ pkgif.Keystore = (*FileKeystore)(nil)

// NewFileKeystore 创建文件 keystore
func NewFileKeystore(path string) *FileKeystore {
	return &FileKeystore{path: path}
}

func (k *FileKeystore) load() (map[string]string, error) {
	data, err := os.ReadFile(k.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return values, nil
}

// Get 实现 Keystore
func (k *FileKeystore) Get(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidName
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	values, err := k.load()
	if err != nil {
		return "", err
	}
	return values[name], nil
}

// Set 实现 Keystore
func (k *FileKeystore) Set(name, value string) error {
	if name == "" {
		return ErrInvalidName
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	values, err := k.load()
	if err != nil {
		return err
	}
	values[name] = value
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(k.path), 0700); err != nil {
		return err
	}
	return atomicWriteFile(k.path, data, 0600)
}

// atomicWriteFile 原子写文件
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("原子 rename 失败: %w", err)
	}
	success = true
	return nil
}
