package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeResumeSnapshot = "resume:snapshot"
)

// ResumeSnapshotPayload 描述重建网格快照所需的最小信息。
type ResumeSnapshotPayload struct {
	ResumeID      uint   `json:"resume_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewResumeSnapshotTask 构造一个新的网格快照任务。
func NewResumeSnapshotTask(id uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ResumeSnapshotPayload{
		ResumeID:      id,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeResumeSnapshot, payload, asynq.MaxRetry(3)), nil
}
