package errcode

// 通知消息中的错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复错误（例如简历已被删除或下线，任务被跳过）
// - 5xxx：系统错误（重试耗尽）
const (
	OK            = 0
	ResumeMissing = 4004
	SystemError   = 5000
)
