package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/AlexanderCholiy/resume-safari/internal/apperr"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// HashPassword 使用 bcrypt 生成密码哈希。
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash 校验密码是否匹配哈希。
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePassword 检查新密码强度：长度范围、不能全为数字、不能包含用户名。
func ValidatePassword(field, password, username string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n < MinPasswordLength:
		return apperr.Validation(field, fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	case len(password) > MaxPasswordLength:
		return apperr.Validation(field, fmt.Sprintf("must be at most %d bytes", MaxPasswordLength))
	case strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) < 0:
		return apperr.Validation(field, "must not be entirely numeric")
	case username != "" && strings.Contains(strings.ToLower(password), strings.ToLower(username)):
		return apperr.Validation(field, "must not contain the username")
	}
	return nil
}

// GenerateOneTimePassword 生成一次性初始密码。
func GenerateOneTimePassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
