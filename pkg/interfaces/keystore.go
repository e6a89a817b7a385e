package interfaces

// Keystore 本地身份的最小持久化能力
//
// 按名称保存字符串，进程重启后保持同一 actor 身份。
type Keystore interface {
	// Get 读取名称对应的值，不存在时返回空串和 nil
	Get(name string) (string, error)

	// Set 保存名称对应的值
	Set(name, value string) error
}
