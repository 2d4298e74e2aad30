// Package guard 提供写入前的配额、唯一性与取值范围检查。
// 所有检查都运行在调用方传入的事务句柄上。
package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/AlexanderCholiy/resume-safari/internal/apperr"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
)

// Counter 描述一个需要限额的集合。
type Counter struct {
	Field string
	Label string
	Model any
	Scope func(*gorm.DB) *gorm.DB
}

// CheckCapacity 在集合条目数达到 limit 时返回 KindCapacity 错误。
func CheckCapacity(ctx context.Context, tx *gorm.DB, c Counter, limit int) error {
	var n int64
	q := tx.WithContext(ctx).Model(c.Model)
	if c.Scope != nil {
		q = q.Scopes(c.Scope)
	}
	if err := q.Count(&n).Error; err != nil {
		return apperr.Internal(err, "count "+c.Label)
	}
	if n >= int64(limit) {
		return apperr.Capacity(c.Field, fmt.Sprintf("limit of %d %s reached", limit, c.Label))
	}
	return nil
}

func ownedBy(ownerID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB { return db.Where("user_id = ?", ownerID) }
}

func inResume(resumeID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB { return db.Where("resume_id = ?", resumeID) }
}

// EducationOf 统计用户的教育经历。
func EducationOf(ownerID uint) Counter {
	return Counter{Field: "educations", Label: "education entries", Model: &database.Education{}, Scope: ownedBy(ownerID)}
}

// ExperienceOf 统计用户的工作经历。
func ExperienceOf(ownerID uint) Counter {
	return Counter{Field: "experiences", Label: "experience entries", Model: &database.Experience{}, Scope: ownedBy(ownerID)}
}

// HardSkillsOf 统计简历上的硬技能放置。
func HardSkillsOf(resumeID uint) Counter {
	return Counter{Field: "hard_skills", Label: "hard skills", Model: &database.HardSkill{}, Scope: inResume(resumeID)}
}

// SoftSkillsOf 统计简历上的软技能放置。
func SoftSkillsOf(resumeID uint) Counter {
	return Counter{Field: "soft_skills", Label: "soft skills", Model: &database.SoftSkill{}, Scope: inResume(resumeID)}
}

// ResumesOf 按发布状态分别统计用户的简历。
func ResumesOf(ownerID uint, published bool) Counter {
	label := "draft resumes"
	if published {
		label = "published resumes"
	}
	return Counter{
		Field: "is_published",
		Label: label,
		Model: &database.Resume{},
		Scope: func(db *gorm.DB) *gorm.DB {
			return db.Where("user_id = ? AND is_published = ?", ownerID, published)
		},
	}
}

// Unique 描述一个唯一键：where 中的列组合在表内唯一。
type Unique struct {
	Field   string
	Message string
	Model   any
	Where   map[string]any
}

// CheckUnique 在存在其他记录（排除 excludeID）占用同一唯一键时返回 KindDuplicate。
// excludeID 为 0 表示新建记录。
func CheckUnique(ctx context.Context, tx *gorm.DB, u Unique, excludeID uint) error {
	q := tx.WithContext(ctx).Model(u.Model).Where(u.Where)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return apperr.Internal(err, "uniqueness lookup")
	}
	if n > 0 {
		msg := u.Message
		if msg == "" {
			msg = "already exists"
		}
		return apperr.Duplicate(u.Field, msg)
	}
	return nil
}

// TranslateWriteError 把存储层错误转换为领域错误：唯一约束冲突为 KindDuplicate，
// 记录不存在为 KindNotFound，其余为 KindInternal。已是 apperr 的错误原样返回。
func TranslateWriteError(err error, field string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case IsUniqueViolation(err):
		return apperr.Duplicate(field, "already exists")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(field, "not found")
	default:
		return apperr.Internal(err, "storage error")
	}
}

// IsUniqueViolation 判断错误是否来自唯一约束。
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// ValidateCoordinates 检查网格坐标位于 [1, maxRows] × [1, maxCols]，越界时拒绝而不是截断。
func ValidateCoordinates(row, col, maxRows, maxCols int) error {
	var out *apperr.Error
	if row < 1 || row > maxRows {
		out = apperr.Validation("grid_row", fmt.Sprintf("must be between 1 and %d", maxRows))
	}
	if col < 1 || col > maxCols {
		msg := fmt.Sprintf("must be between 1 and %d", maxCols)
		if out == nil {
			out = apperr.Validation("grid_column", msg)
		} else {
			out.WithField("grid_column", msg)
		}
	}
	if out == nil {
		return nil
	}
	return out
}

// ValidatePeriod 检查结束日期不早于开始日期。
func ValidatePeriod(start time.Time, end *time.Time) error {
	if end != nil && end.Before(start) {
		return apperr.Validation("end_date", "must not be earlier than start_date")
	}
	return nil
}
