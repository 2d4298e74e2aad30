package worker

import "fmt"

// SnapshotNotifyMessage 通过 Redis Pub/Sub 经 WebSocket 转发给前端。
// 字段名与前端解析保持一致。
type SnapshotNotifyMessage struct {
	Status        string `json:"status"`
	ResumeID      uint   `json:"resume_id"`
	Slug          string `json:"slug,omitempty"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
}

// NotifyChannel 返回用户的通知频道。
func NotifyChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}
