package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/AlexanderCholiy/resume-safari/internal/apperr"
	"github.com/AlexanderCholiy/resume-safari/internal/auth"
	"github.com/AlexanderCholiy/resume-safari/internal/config"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/guard"
)

const refreshTokenCookieName = "refresh_token"
const refreshTokenBlacklistKeyPrefix = "auth:refresh:blacklist:"

// AuthHandler 处理注册、登录、刷新、改密与退出。
type AuthHandler struct {
	db                    *gorm.DB
	authService           *auth.AuthService
	redis                 SessionStore
	loginRateLimitPerHour int
	loginLockThreshold    int
	loginLockTTL          time.Duration
	cookieDomain          string
	now                   func() time.Time
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(db *gorm.DB, authService *auth.AuthService, store SessionStore, authCfg config.AuthConfig, cookieDomain string) *AuthHandler {
	return &AuthHandler{
		db:                    db,
		authService:           authService,
		redis:                 store,
		loginRateLimitPerHour: authCfg.LoginRateLimitPerHour,
		loginLockThreshold:    authCfg.LoginLockThreshold,
		loginLockTTL:          authCfg.LoginLockTTL,
		cookieDomain:          cookieDomain,
		now:                   time.Now,
	}
}

type registerRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=150"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
}

type registerResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Register 创建新用户账号，用户名与邮箱都必须唯一。
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	ctx := c.Request.Context()
	logger := requestLogger(c).With(slog.String("username", username))

	if err := auth.ValidatePassword("password", req.Password, username); err != nil {
		RespondError(c, err)
		return
	}
	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		RespondError(c, err)
		return
	}

	user := database.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		IsActive:     true,
	}
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := guard.CheckUnique(ctx, tx, guard.Unique{
			Field:   "username",
			Message: "a user with that username already exists",
			Model:   &database.User{},
			Where:   map[string]any{"username": username},
		}, 0); err != nil {
			return err
		}
		if err := guard.CheckUnique(ctx, tx, guard.Unique{
			Field:   "email",
			Message: "user with this email already exists",
			Model:   &database.User{},
			Where:   map[string]any{"email": email},
		}, 0); err != nil {
			return err
		}
		return guard.TranslateWriteError(tx.Create(&user).Error, "username")
	})
	if err != nil {
		logger.Info("register rejected", slog.Any("error", err))
		RespondError(c, err)
		return
	}

	logger.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusCreated, registerResponse{ID: user.ID, Username: user.Username, Email: user.Email})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken        string `json:"access_token"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int    `json:"expires_in"`
	MustChangePassword bool   `json:"must_change_password"`
}

// Login 校验口令并返回 Token，被停用的账号不能登录。
func (h *AuthHandler) Login(c *gin.Context) {
	ip := c.ClientIP()
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	username := strings.TrimSpace(req.Username)
	lowered := strings.ToLower(username)

	ctx := c.Request.Context()
	logger := requestLogger(c).With(slog.String("username", username))

	// 速率限制：每 IP+用户名 每小时
	rateKey := "rate:login:" + ip + ":" + lowered + ":" + h.now().UTC().Format("2006010215")
	count, err := incrWithTTL(ctx, h.redis, rateKey, time.Hour)
	if err != nil {
		count = 0
	}
	if count > int64(h.loginRateLimitPerHour) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	lockKey := "lock:login:" + lowered
	if ttl, _ := h.redis.TTL(ctx, lockKey).Result(); ttl > 0 {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "account temporarily locked"})
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("login failed: user not found")
			_ = h.incrementLoginFail(ctx, lowered)
			Unauthorized(c)
			return
		}
		logger.Error("login query failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		logger.Info("login failed: password mismatch", slog.Uint64("user_id", uint64(user.ID)))
		_ = h.incrementLoginFail(ctx, lowered)
		Unauthorized(c)
		return
	}
	if !user.IsActive {
		logger.Info("login failed: account disabled", slog.Uint64("user_id", uint64(user.ID)))
		Forbidden(c, "account is disabled")
		return
	}

	_ = h.redis.Del(ctx, "lock:login:fail:"+lowered).Err()
	h.issueTokens(c, logger, user)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh 校验刷新令牌并颁发新的 TokenPair，旧令牌进入黑名单。
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	logger := requestLogger(c)

	claims, ok := h.refreshClaims(c, logger)
	if !ok {
		Unauthorized(c)
		return
	}

	key := refreshTokenBlacklistKeyPrefix + claims.ID
	if err := h.redis.Get(ctx, key).Err(); err == nil {
		logger.Info("refresh token revoked", slog.String("jti", claims.ID))
		Unauthorized(c)
		return
	} else if !errors.Is(err, redis.Nil) {
		logger.Error("refresh token blacklist lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).Take(&user, claims.UserID).Error; err != nil || !user.IsActive {
		logger.Info("refresh user unavailable", slog.Uint64("user_id", uint64(claims.UserID)))
		Unauthorized(c)
		return
	}

	if err := h.revokeRefreshToken(ctx, key, claims.ExpiresAt); err != nil {
		logger.Error("refresh revoke old token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.issueTokens(c, logger, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// ChangePassword 校验当前密码并更新为新密码，同时清除强制改密标记。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		RespondError(c, apperr.Validation("confirm_password", "password confirmation does not match"))
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c)

	var user database.User
	if err := h.db.WithContext(ctx).Take(&user, userID).Error; err != nil {
		logger.Info("change password: user not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}
	if !auth.CheckPasswordHash(req.CurrentPassword, user.PasswordHash) {
		logger.Info("change password: current password mismatch")
		RespondError(c, apperr.Validation("current_password", "current password is incorrect"))
		return
	}
	if req.NewPassword == req.CurrentPassword {
		RespondError(c, apperr.Validation("new_password", "new password must be different from current password"))
		return
	}
	if err := auth.ValidatePassword("new_password", req.NewPassword, user.Username); err != nil {
		RespondError(c, err)
		return
	}

	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		RespondError(c, err)
		return
	}
	if err := h.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"password_hash":        hashed,
		"must_change_password": false,
	}).Error; err != nil {
		RespondError(c, apperr.Internal(err, "update password"))
		return
	}
	user.MustChangePassword = false

	if refreshToken, err := c.Cookie(refreshTokenCookieName); err == nil && refreshToken != "" {
		if claims, err := h.authService.ValidateToken(refreshToken); err == nil && claims.TokenType == auth.TokenTypeRefresh && claims.ID != "" {
			key := refreshTokenBlacklistKeyPrefix + claims.ID
			if err := h.revokeRefreshToken(ctx, key, claims.ExpiresAt); err != nil {
				logger.Error("change password: revoke refresh failed", slog.Any("error", err))
				Internal(c, "internal error")
				return
			}
		}
	}

	logger.Info("password changed")
	h.issueTokens(c, logger, user)
}

// Logout 将刷新令牌加入黑名单，防止继续使用。
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	logger := requestLogger(c)

	claims, ok := h.refreshClaims(c, logger)
	if !ok {
		Unauthorized(c)
		return
	}

	key := refreshTokenBlacklistKeyPrefix + claims.ID
	if err := h.revokeRefreshToken(ctx, key, claims.ExpiresAt); err != nil {
		logger.Error("logout revoke token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    "",
		MaxAge:   -1,
		Path:     "/",
		Secure:   isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Domain:   strings.TrimSpace(h.cookieDomain),
	})
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) refreshClaims(c *gin.Context, logger *slog.Logger) (*auth.TokenClaims, bool) {
	token := h.extractRefreshToken(c)
	if token == "" {
		return nil, false
	}
	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		logger.Info("refresh token invalid", slog.Any("error", err))
		return nil, false
	}
	if claims.TokenType != auth.TokenTypeRefresh || claims.ID == "" {
		logger.Info("refresh token rejected", slog.String("token_type", claims.TokenType))
		return nil, false
	}
	return claims, true
}

func (h *AuthHandler) issueTokens(c *gin.Context, logger *slog.Logger, user database.User) {
	pair, err := h.authService.GenerateTokenPair(auth.Subject{
		UserID:             user.ID,
		IsStaff:            user.IsStaff,
		MustChangePassword: user.MustChangePassword,
	})
	if err != nil {
		logger.Error("generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:        pair.AccessToken,
		TokenType:          "Bearer",
		ExpiresIn:          int(h.authService.AccessTokenTTL().Seconds()),
		MustChangePassword: user.MustChangePassword,
	})
}

func (h *AuthHandler) extractRefreshToken(c *gin.Context) string {
	if token, err := c.Cookie(refreshTokenCookieName); err == nil && token != "" {
		return token
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	return ""
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, refreshToken string) {
	ttl := h.authService.RefreshTokenTTL()
	maxAge := int(ttl.Seconds())
	if maxAge <= 0 {
		maxAge = int(time.Hour.Seconds())
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    refreshToken,
		MaxAge:   maxAge,
		Path:     "/",
		Secure:   isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Domain:   strings.TrimSpace(h.cookieDomain),
		Expires:  h.now().Add(ttl),
	})
}

func (h *AuthHandler) revokeRefreshToken(ctx context.Context, key string, expiresAt *jwt.NumericDate) error {
	ttl := h.authService.RefreshTokenTTL()
	if expiresAt != nil {
		ttl = expiresAt.Time.Sub(h.now())
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return h.redis.Set(ctx, key, "revoked", ttl).Err()
}

func (h *AuthHandler) incrementLoginFail(ctx context.Context, username string) error {
	failKey := "lock:login:fail:" + username
	count, err := incrWithTTL(ctx, h.redis, failKey, h.loginLockTTL)
	if err != nil {
		return err
	}
	if count >= int64(h.loginLockThreshold) {
		_ = h.redis.Set(ctx, "lock:login:"+username, "1", h.loginLockTTL).Err()
	}
	return nil
}

func isHTTPSRequest(c *gin.Context) bool {
	if c.Request == nil {
		return false
	}
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(c.Request.Header.Get("X-Forwarded-Proto"), "https")
}
