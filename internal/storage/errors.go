package storage

import (
	"errors"
	"strings"

	"github.com/minio/minio-go/v7"
)

// IsNoSuchKey 判断错误是否表示对象不存在。
func IsNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch strings.ToLower(resp.Code) {
		case "nosuchkey", "notfound":
			return true
		}
	}
	// 经过代理时错误可能只剩字符串。
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "nosuchkey") || strings.Contains(lower, "specified key does not exist")
}
