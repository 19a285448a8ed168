package node

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// ExtractJSON 返回模型输出中第一个能完整解码的 JSON 对象或数组，找不到时返回空串。
// 前后的说明文字与 ``` 代码围栏会被跳过。
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		var v json.RawMessage
		if err := json.NewDecoder(strings.NewReader(s[i:])).Decode(&v); err == nil {
			return string(v)
		}
	}
	return ""
}

// responseFormatHints 服务商拒绝 response_format 时错误信息中常见的片段
var responseFormatHints = []string{
	"response_format",
	"response_schema",
	"json_schema",
	"json mode",
}

// IsResponseFormatRejected 判断错误是否因服务商不支持 JSON 响应格式
func IsResponseFormatRejected(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, h := range responseFormatHints {
		if strings.Contains(msg, h) {
			return true
		}
	}
	return strings.Contains(msg, "unknown parameter") && strings.Contains(msg, "response")
}

// Truncate 按字符截断，超出时以 … 结尾
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes-1 {
			return s[:i] + "…"
		}
		n++
	}
	return s
}
