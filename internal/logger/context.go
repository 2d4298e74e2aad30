package logger

import "context"

type correlationKey struct{}

// WithCorrelationID 把请求的 Correlation ID 放入 context，供异步任务沿用。
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID 从 context 中取出 Correlation ID，没有时返回空串。
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
