package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/AlexanderCholiy/resume-safari/internal/auth"
	"github.com/AlexanderCholiy/resume-safari/internal/worker"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// NotifySubscriber 订阅单个通知频道，返回原始负载流与取消订阅函数。
type NotifySubscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan string, func() error)
}

// RedisNotifySubscriber 基于 Redis pub/sub 实现 NotifySubscriber。
type RedisNotifySubscriber struct {
	Client *redis.Client
}

func (s RedisNotifySubscriber) Subscribe(ctx context.Context, channel string) (<-chan string, func() error) {
	pubsub := s.Client.Subscribe(ctx, channel)
	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, pubsub.Close
}

// WsHandler 负责 WebSocket 鉴权，并把用户频道上的快照通知转发给客户端。
type WsHandler struct {
	notifications NotifySubscriber
	authService   *auth.AuthService
	logger        *slog.Logger
	upgrader      websocket.Upgrader
}

// NewWsHandler 构造 WebSocket 处理器。
func NewWsHandler(notifications NotifySubscriber, authService *auth.AuthService, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	return &WsHandler{
		notifications: notifications,
		authService:   authService,
		logger:        logger,
		upgrader:      websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)},
	}
}

// originChecker 未配置白名单时只接受同源请求。
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) > 0 {
			return slices.Contains(allowed, origin)
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// wsRejection 携带关闭帧的原因文本。
type wsRejection struct {
	reason string
	err    error
}

func (e *wsRejection) Error() string { return e.reason + ": " + e.err.Error() }
func (e *wsRejection) Unwrap() error { return e.err }

// HandleConnection 升级连接，完成首条消息鉴权后转发通知。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	if h.notifications == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "notifications unavailable"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	userID, err := h.authenticate(conn)
	if err != nil {
		var rej *wsRejection
		if errors.As(err, &rej) {
			writeClose(conn, websocket.ClosePolicyViolation, rej.reason)
		}
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}
	log = log.With(slog.Uint64("user_id", uint64(userID)))
	log.Info("websocket authenticated")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go watchDisconnect(conn, cancel)

	err = h.relay(ctx, conn, userID, log)
	log.Info("websocket connection closed", slog.Any("error", err))
}

// authenticate 读取首条消息，要求是未被改密门禁拦截的访问令牌。
func (h *WsHandler) authenticate(conn *websocket.Conn) (uint, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read auth message: %w", err)
	}

	var msg wsAuthMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return 0, &wsRejection{"invalid auth payload", err}
	}
	if msg.Type != "auth" || msg.Token == "" {
		return 0, &wsRejection{"auth required", errors.New("first message must be an auth message")}
	}

	claims, err := h.authService.ValidateToken(msg.Token)
	switch {
	case err != nil:
		return 0, &wsRejection{"unauthorized", err}
	case claims.TokenType != auth.TokenTypeAccess:
		return 0, &wsRejection{"access token required", fmt.Errorf("got %s token", claims.TokenType)}
	case claims.MustChangePassword:
		return 0, &wsRejection{"password change required", errors.New("must change password")}
	}
	return claims.UserID, nil
}

// watchDisconnect 丢弃客户端后续消息，读失败即视为断开。
func watchDisconnect(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *WsHandler) relay(ctx context.Context, conn *websocket.Conn, userID uint, log *slog.Logger) error {
	payloads, unsubscribe := h.notifications.Subscribe(ctx, worker.NotifyChannel(userID))
	defer func() {
		if err := unsubscribe(); err != nil {
			log.Warn("unsubscribe notify channel failed", slog.Any("error", err))
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-payloads:
			if !ok {
				return errors.New("notify channel closed")
			}
			msg, err := decodeSnapshotNotify(payload)
			if err != nil {
				log.Warn("dropping malformed snapshot notification", slog.Any("error", err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				return fmt.Errorf("write notification: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func decodeSnapshotNotify(payload string) (worker.SnapshotNotifyMessage, error) {
	var msg worker.SnapshotNotifyMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return msg, err
	}
	if msg.Status == "" || msg.ResumeID == 0 {
		return msg, errors.New("status and resume_id are required")
	}
	return msg, nil
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteTimeout))
}
