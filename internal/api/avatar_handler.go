package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"

	"github.com/AlexanderCholiy/resume-safari/internal/apperr"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
)

const avatarURLTTL = 15 * time.Minute

// AvatarStore 是头像用到的对象存储操作。
type AvatarStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// VirusScanner 检查上传内容，发现威胁时返回错误。
type VirusScanner interface {
	Scan(r io.Reader) error
}

var errMalicious = apperr.Validation("file", "malicious file detected")

// ClamdScanner 通过 clamd 的 INSTREAM 扫描文件。
type ClamdScanner struct {
	Addr string
}

func (s ClamdScanner) Scan(r io.Reader) error {
	abort := make(chan bool)
	defer close(abort)
	results, err := clamd.NewClamd(s.Addr).ScanStream(r, abort)
	if err != nil {
		return fmt.Errorf("scan stream: %w", err)
	}
	for result := range results {
		if result.Status != clamd.RES_OK {
			return errMalicious
		}
	}
	return nil
}

// AvatarHandler 负责头像上传与访问。
type AvatarHandler struct {
	db       *gorm.DB
	storage  AvatarStore
	scanner  VirusScanner
	maxBytes int64
}

// NewAvatarHandler 返回 AvatarHandler 实例，scanner 为 nil 时跳过病毒扫描。
func NewAvatarHandler(db *gorm.DB, store AvatarStore, scanner VirusScanner, maxBytes int64) *AvatarHandler {
	return &AvatarHandler{db: db, storage: store, scanner: scanner, maxBytes: maxBytes}
}

// UploadAvatar 校验并扫描图片后写入存储，替换用户当前头像。
func (h *AvatarHandler) UploadAvatar(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	logger := requestLogger(c)

	file, err := c.FormFile("file")
	if err != nil {
		RespondError(c, apperr.Validation("file", "this field is required"))
		return
	}
	if file.Size <= 0 || file.Size > h.maxBytes {
		RespondError(c, apperr.Validation("file", fmt.Sprintf("must be between 1 and %d bytes", h.maxBytes)))
		return
	}

	reader, err := file.Open()
	if err != nil {
		RespondError(c, apperr.Internal(err, "open upload"))
		return
	}
	detected, err := mimetype.DetectReader(reader)
	reader.Close()
	if err != nil {
		RespondError(c, apperr.Internal(err, "detect content type"))
		return
	}
	contentType := detected.String()
	ext, allowed := avatarExtensions[contentType]
	if !allowed {
		RespondError(c, apperr.Validation("file", "must be a PNG, JPEG or WebP image"))
		return
	}

	if h.scanner != nil {
		reader, err := file.Open()
		if err != nil {
			RespondError(c, apperr.Internal(err, "open upload"))
			return
		}
		err = h.scanner.Scan(reader)
		reader.Close()
		if err != nil {
			if apperr.Is(err, apperr.KindValidation) {
				logger.Warn("avatar rejected by scanner", slog.Uint64("user_id", uint64(userID)))
			}
			RespondError(c, err)
			return
		}
	}

	reader, err = file.Open()
	if err != nil {
		RespondError(c, apperr.Internal(err, "open upload"))
		return
	}
	defer reader.Close()

	objectKey := avatarPrefix(userID) + uuid.NewString() + ext
	if _, err := h.storage.UploadFile(ctx, objectKey, reader, file.Size, contentType); err != nil {
		RespondError(c, apperr.Internal(err, "upload avatar"))
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).Take(&user, userID).Error; err != nil {
		_ = h.storage.DeleteObject(ctx, objectKey)
		RespondError(c, apperr.NotFound("user", "user not found"))
		return
	}
	previous := user.AvatarKey
	if err := h.db.WithContext(ctx).Model(&user).Update("avatar_key", objectKey).Error; err != nil {
		_ = h.storage.DeleteObject(ctx, objectKey)
		RespondError(c, apperr.Internal(err, "save avatar key"))
		return
	}
	if isAvatarKeyOf(userID, previous) {
		if err := h.storage.DeleteObject(ctx, previous); err != nil {
			logger.Warn("delete previous avatar failed", slog.String("object_key", previous), slog.Any("error", err))
		}
	}

	url, err := h.storage.GeneratePresignedURL(ctx, objectKey, avatarURLTTL)
	if err != nil {
		RespondError(c, apperr.Internal(err, "generate avatar url"))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"object_key": objectKey, "url": url})
}

// GetAvatarURL 返回当前头像的临时预签名 URL。
func (h *AvatarHandler) GetAvatarURL(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var user database.User
	if err := h.db.WithContext(ctx).Select("id", "avatar_key").Take(&user, userID).Error; err != nil {
		RespondError(c, apperr.NotFound("user", "user not found"))
		return
	}
	if !isAvatarKeyOf(userID, user.AvatarKey) {
		RespondError(c, apperr.NotFound("avatar", "avatar is not set"))
		return
	}

	url, err := h.storage.GeneratePresignedURL(ctx, user.AvatarKey, avatarURLTTL)
	if err != nil {
		RespondError(c, apperr.Internal(err, "generate avatar url"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in": int(avatarURLTTL.Seconds())})
}

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

func avatarPrefix(userID uint) string {
	return fmt.Sprintf("avatars/%d/", userID)
}

func isAvatarKeyOf(userID uint, key string) bool {
	if key == "" || len(key) > 255 {
		return false
	}
	if !strings.HasPrefix(key, avatarPrefix(userID)) {
		return false
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\\") || strings.Contains(key, "//") {
		return false
	}
	lower := strings.ToLower(key)
	for _, ext := range avatarExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
