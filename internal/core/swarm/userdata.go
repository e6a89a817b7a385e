package swarm

import (
	"encoding/json"
	"fmt"

	"github.com/dep2p/go-multicore/pkg/types"
)

// UserData 握手中携带的对端身份
//
//	{"name": "<显示名>", "key": "<feed 公钥十六进制>"}
type UserData struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// EncodeUserData 编码本端身份
func EncodeUserData(name string, key types.Key) []byte {
	data, _ := json.Marshal(UserData{Name: name, Key: key.String()})
	return data
}

// ParseUserData 解析对端身份
//
// 缺失返回 ErrMissingUserData；非 JSON、缺少 key 或 key 不是 32 字节
// 十六进制都返回 ErrMalformedUserData。
func ParseUserData(data []byte) (string, types.Key, error) {
	if len(data) == 0 {
		return "", types.Key{}, ErrMissingUserData
	}

	var ud UserData
	if err := json.Unmarshal(data, &ud); err != nil {
		return "", types.Key{}, fmt.Errorf("%w: %v", ErrMalformedUserData, err)
	}
	if ud.Key == "" {
		return "", types.Key{}, fmt.Errorf("%w: no key", ErrMalformedUserData)
	}
	key, err := types.ParseKey(ud.Key)
	if err != nil {
		return "", types.Key{}, fmt.Errorf("%w: %v", ErrMalformedUserData, err)
	}
	return ud.Name, key, nil
}
