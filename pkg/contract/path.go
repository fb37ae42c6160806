package contract

import (
	"path"
	"strings"
)

// NormalizeSourceID 规范化路径，统一为跨平台稳定的 SourceID。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
// - "-" 表示 STDIN，原样保留为 "stdin"
func NormalizeSourceID(p string) SourceID {
	if p == "-" {
		return SourceID("stdin")
	}
	s := strings.ReplaceAll(p, "\\", "/")
	return SourceID(path.Clean(s))
}
